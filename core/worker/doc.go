// Package worker runs background jobs (channel pushes, imports, sweeps) on a
// bounded goroutine pool. Failures and panics are logged and never stop a worker.
package worker
