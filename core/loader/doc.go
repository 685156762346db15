// Package loader provides the feature loading system.
//
// Each feature (inventory, channels, reconciliation, ingest, integrity) implements
// the Feature interface and registers its routes when loaded.
//
// # Feature Interface
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// # Manager
//
// The Manager holds the registry of features: Register adds one and LoadAll loads
// every enabled feature in registration order.
package loader
