// Package metrics declares the Prometheus collectors of the service.
//
// Collectors are registered on the default registry at init and served by Handler
// under GET /metrics.
package metrics
