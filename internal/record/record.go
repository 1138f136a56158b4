// Package record defines the data model for externally imported records.
package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ImportType describes the scope of an import operation.
type ImportType string

// Supported import types.
const (
	// FullSync means the producer supplies the complete record set; records
	// absent from the feed no longer exist upstream.
	FullSync ImportType = "full_sync"
	// PartialUpdate means the producer supplies only records that changed
	// since the previous import.
	PartialUpdate ImportType = "partial_update"
)

// ParseImportType converts a wire/config string into an ImportType.
func ParseImportType(s string) (ImportType, error) {
	switch ImportType(strings.ToLower(strings.TrimSpace(s))) {
	case FullSync:
		return FullSync, nil
	case PartialUpdate:
		return PartialUpdate, nil
	default:
		return "", fmt.Errorf("unknown import type %q", s)
	}
}

// Valid reports whether the ImportType is one of the supported values.
func (t ImportType) Valid() bool {
	return t == FullSync || t == PartialUpdate
}

// String returns the wire form of the import type.
func (t ImportType) String() string {
	return string(t)
}

// Type names the kind of record being imported, e.g. "patron".
type Type string

// Validate rejects empty record types.
func (t Type) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return errors.New("record type is required")
	}
	return nil
}

// ID is a typed external identifier for a record. Records commonly carry
// several IDs minted by different upstream systems.
type ID struct {
	// Type names the identifier scheme, e.g. "crsid" or "barcode".
	Type string
	// Value is the identifier itself.
	Value string
}

// Validate rejects IDs with missing fields.
func (id ID) Validate() error {
	if id.Type == "" {
		return errors.New("id type is required")
	}
	if id.Value == "" {
		return errors.New("id value is required")
	}
	return nil
}

// String renders the ID as type:value.
func (id ID) String() string {
	return id.Type + ":" + id.Value
}

// Record is one imported item pushed from a producer to consumers. A nil
// Data payload indicates the record was deleted upstream.
type Record struct {
	ids  []ID
	data []byte
}

// New constructs a Record, deduplicating the provided IDs. ID order is
// normalized so two records with the same ID set compare equal.
func New(ids []ID, data []byte) Record {
	seen := make(map[ID]struct{}, len(ids))
	unique := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool {
		if unique[i].Type != unique[j].Type {
			return unique[i].Type < unique[j].Type
		}
		return unique[i].Value < unique[j].Value
	})
	return Record{ids: unique, data: data}
}

// IDs returns a copy of the record's identifier set.
func (r Record) IDs() []ID {
	return append([]ID(nil), r.ids...)
}

// IDMap indexes the record's IDs by identifier scheme. When a record carries
// multiple IDs of the same scheme the last one in normalized order wins.
func (r Record) IDMap() map[string]ID {
	m := make(map[string]ID, len(r.ids))
	for _, id := range r.ids {
		m[id.Type] = id
	}
	return m
}

// Data returns the record payload; nil for deleted records.
func (r Record) Data() []byte {
	return r.data
}

// IsDeleted reports whether the upstream record was deleted.
func (r Record) IsDeleted() bool {
	return r.data == nil
}

// Validate checks the record is well formed: at least one ID, every ID valid.
func (r Record) Validate() error {
	if len(r.ids) == 0 {
		return errors.New("record requires at least one id")
	}
	for _, id := range r.ids {
		if err := id.Validate(); err != nil {
			return fmt.Errorf("invalid record id %q: %w", id, err)
		}
	}
	return nil
}

// String renders a compact representation for logs.
func (r Record) String() string {
	parts := make([]string, len(r.ids))
	for i, id := range r.ids {
		parts[i] = id.String()
	}
	state := "data"
	if r.IsDeleted() {
		state = "deleted"
	}
	return fmt.Sprintf("Record(%s, %s)", strings.Join(parts, ","), state)
}
