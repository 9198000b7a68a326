package provider

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory describes a detection backend that can be opened on this host
type Factory struct {
	// Provider is the value the backend is selected by
	Provider Provider
	// Name is a human readable description used in logs
	Name string
	// Rank orders providers for automatic selection, higher is preferred
	Rank int
	// Probe checks if the backend can run on this host returning nil when
	// it can.  A nil Probe is always available
	Probe func() error
	// New creates an unloaded backend instance
	New func() (Backend, error)
}

// Capabilities knows which providers are registered and available on this
// host.  It is created once and shared by every Controller
type Capabilities struct {
	mu        sync.RWMutex
	factories map[Provider]Factory
	// probes holds the last probe result per provider, nil is available
	probes map[Provider]error
	log    *zap.Logger
}

// NewCapabilities registers the given backend factories and probes their
// availability.  A later factory for the same provider replaces an earlier
// one
func NewCapabilities(log *zap.Logger, factories ...Factory) *Capabilities {

	if log == nil {
		log = zap.NewNop()
	}

	c := &Capabilities{
		factories: make(map[Provider]Factory, len(factories)),
		probes:    make(map[Provider]error, len(factories)),
		log:       log,
	}

	for _, f := range factories {
		if !f.Provider.Selectable() || f.Provider == Automatic {
			log.Warn("ignoring factory with invalid provider",
				zap.Stringer("provider", f.Provider),
				zap.String("name", f.Name),
			)
			continue
		}

		c.factories[f.Provider] = f
	}

	c.Refresh()

	return c
}

// Refresh probes every registered provider again
func (c *Capabilities) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for p, f := range c.factories {
		var err error

		if f.Probe != nil {
			err = f.Probe()
		}

		c.probes[p] = err

		if err != nil {
			c.log.Info("provider unavailable",
				zap.Stringer("provider", p),
				zap.String("name", f.Name),
				zap.Error(err),
			)
		} else {
			c.log.Debug("provider available",
				zap.Stringer("provider", p),
				zap.String("name", f.Name),
				zap.Int("rank", f.Rank),
			)
		}
	}
}

// IsAvailable reports if provider p can be used on this host.  Automatic is
// available when any registered provider is
func (c *Capabilities) IsAvailable(p Provider) bool {

	if p == Automatic {
		return c.IdealProvider() != Invalid
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	err, ok := c.probes[p]

	return ok && err == nil
}

// IdealProvider returns the highest ranked available provider, or Invalid
// when none is available
func (c *Capabilities) IdealProvider() Provider {

	for _, p := range c.Providers() {
		if c.IsAvailable(p) {
			return p
		}
	}

	return Invalid
}

// Providers returns every registered provider ordered by preference,
// highest rank first, ties by lower provider value
func (c *Capabilities) Providers() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]Provider, 0, len(c.factories))

	for p := range c.factories {
		list = append(list, p)
	}

	sort.Slice(list, func(i, j int) bool {
		ri, rj := c.factories[list[i]].Rank, c.factories[list[j]].Rank

		if ri != rj {
			return ri > rj
		}

		return list[i] < list[j]
	})

	return list
}

// Name returns the description of a registered provider
func (c *Capabilities) Name(p Provider) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if f, ok := c.factories[p]; ok {
		return f.Name
	}

	return p.String()
}

// Resolve maps a selected provider to the concrete provider to load.
// Automatic resolves to the ideal provider
func (c *Capabilities) Resolve(p Provider) (Provider, error) {

	if p == Automatic {
		ideal := c.IdealProvider()

		if ideal == Invalid {
			return Invalid, fmt.Errorf("automatic: no provider available: %w", ErrUnavailable)
		}

		return ideal, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.factories[p]; !ok {
		return Invalid, fmt.Errorf("%s: %w", p, ErrUnknownProvider)
	}

	if err := c.probes[p]; err != nil {
		return Invalid, fmt.Errorf("%s: %w: %v", p, ErrUnavailable, err)
	}

	return p, nil
}

// Open creates an unloaded backend instance for provider p after resolving
// it
func (c *Capabilities) Open(p Provider) (Backend, error) {

	p, err := c.Resolve(p)

	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	f := c.factories[p]
	c.mu.RUnlock()

	if f.New == nil {
		return nil, fmt.Errorf("%s: no constructor: %w", p, ErrUnavailable)
	}

	b, err := f.New()

	if err != nil {
		return nil, fmt.Errorf("error creating %s backend: %w", p, err)
	}

	return b, nil
}
