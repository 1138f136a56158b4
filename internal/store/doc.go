// Package store defines repository interfaces and row models for operation
// progress persistence; implementations live under internal/storage.
package store
