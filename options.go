package autoframe

import (
	"github.com/swdee/go-autoframe/provider"
	"go.uber.org/zap"
)

// Option configures a Filter
type Option func(*Filter)

// WithLogger sets the logger used by the Filter, its tracker and provider
// controller
func WithLogger(log *zap.Logger) Option {
	return func(f *Filter) {
		if log != nil {
			f.log = log
		}
	}
}

// WithPool runs provider switches and inference on a pool shared between
// Filters
func WithPool(p *provider.Pool) Option {
	return func(f *Filter) {
		f.pool = p
	}
}

// WithTrail records the last size center points of each track for the debug
// overlay
func WithTrail(size int) Option {
	return func(f *Filter) {
		f.trailSize = size
	}
}
