// Package importop coordinates import operations between producers of
// externally imported data and the consumers that process it. Producers run
// operations through a Coordinator; consumers subscribe to a Registry to be
// told when an operation starts and attach Handlers to receive its records.
//
// The package guarantees one contract above all others: every handler
// attached when an operation starts receives exactly one terminal callback,
// OnImportFinished or OnImportFailed, no matter how the operation ends.
package importop
