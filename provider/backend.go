package provider

import (
	"image"

	"github.com/swdee/go-autoframe/tracker"
)

// Backend is a detection implementation driven by the Controller.  All
// methods are called from a pool worker while the provider lock is held so
// implementations need not be safe for concurrent use
type Backend interface {
	// Load prepares the backend, such as loading a model onto the device
	Load() error
	// Detect returns the targets found in img in img's pixel coordinates
	Detect(img image.Image) ([]tracker.Detection, error)
	// Close releases all resources held by the backend
	Close() error
}
