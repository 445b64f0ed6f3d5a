package form

import "github.com/goliatone/go-datasources/pkg/meta"

// TypeInfo is the minimal per-field descriptor cached between render and
// encode. Keeping only the type lets callers stash the map in a session and
// skip the metadata round-trip on save.
type TypeInfo struct {
	Type meta.FieldType `json:"type"`
}

// FieldInfo maps rendered field names (checkbox choices under their compound
// names) to their descriptors. It is built as a side effect of rendering and
// returned to the caller; this package never stores one.
type FieldInfo map[string]TypeInfo

func (fi FieldInfo) record(name string, ft meta.FieldType) {
	if fi == nil {
		return
	}
	fi[name] = TypeInfo{Type: ft}
}
