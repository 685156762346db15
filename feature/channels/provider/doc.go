// Package provider defines the capability interface of sales channels.
//
// Sync, order intake and reconciliation only talk to Provider and OrderSource, so
// adding a channel means adding a subpackage and registering it in a Registry.
// The ebay subpackage talks to the eBay REST APIs; memory is a sandbox channel for
// local runs and tests.
package provider
