// Package column defines the value type universe of a time series table and
// the typed, null-aware column buffers writers fill and readers decode into.
package column

import (
	"fmt"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Type represents the declared value type of a column.
type Type int

const (
	// TypeUninitialized is the zero Type; no column carries it.
	TypeUninitialized Type = iota
	TypeDouble
	TypeBlob
	TypeInt64
	TypeString
	TypeTimestamp
	// TypeSymbol shares the String representation and is resolved against a
	// named symbol table by the engine.
	TypeSymbol
)

var typeNames = map[Type]string{
	TypeUninitialized: "uninitialized",
	TypeDouble:        "double",
	TypeBlob:          "blob",
	TypeInt64:         "int64",
	TypeString:        "string",
	TypeTimestamp:     "timestamp",
	TypeSymbol:        "symbol",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Valid reports whether t is one of the six storable types.
func (t Type) Valid() bool {
	return t >= TypeDouble && t <= TypeSymbol
}

// ParseType maps a type name ("double", "int64", ...) to a Type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s && t.Valid() {
			return t, nil
		}
	}
	return TypeUninitialized, qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "unknown column type %q", s)
}

// Schema describes one column: name, value type and, for symbol columns,
// the symbol table. A Schema is immutable once the table exists.
type Schema struct {
	Name     string `json:"name" yaml:"name"`
	Type     Type   `json:"type" yaml:"type"`
	Symtable string `json:"symtable,omitempty" yaml:"symtable,omitempty"`
}

// Validate checks the schema is storable.
func (s Schema) Validate() error {
	if s.Name == "" {
		return qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "column name is empty")
	}
	if len(s.Name) > 0 && s.Name[0] == '$' {
		return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "column name %q is reserved", s.Name)
	}
	if !s.Type.Valid() {
		return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "column %s has invalid type %s", s.Name, s.Type)
	}
	if s.Type == TypeSymbol && s.Symtable == "" {
		return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "symbol column %s needs a symbol table", s.Name)
	}
	if s.Type != TypeSymbol && s.Symtable != "" {
		return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "column %s is not a symbol column", s.Name)
	}
	return nil
}

// Synthetic column names readers expose next to the requested columns.
const (
	TimestampColumnName = "$timestamp"
	TableColumnName     = "$table"
)

// Names returns the column names of schemas in order.
func Names(schemas []Schema) []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Name
	}
	return out
}

// Index returns the offset of the column called name, or -1.
func Index(schemas []Schema, name string) int {
	for i, s := range schemas {
		if s.Name == name {
			return i
		}
	}
	return -1
}
