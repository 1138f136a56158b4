// Package handlers contains reusable import handlers that bridge operations
// to downstream infrastructure: archiving raw record payloads to a blob store
// and publishing record envelopes to a message broker.
package handlers
