package engine

import (
	"fmt"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Code is a raw engine result code.
type Code int

const (
	Success Code = iota
	AliasNotFound
	AliasAlreadyExists
	IncompatibleType
	ColumnNotFound
	EmptyColumn
	InvalidArgument
	TypeMismatch
	PartialFailure
	InvalidHandle
	Internal
)

var codeNames = [...]string{
	"success", "alias not found", "alias already exists", "incompatible type",
	"column not found", "empty column", "invalid argument", "type mismatch",
	"partial failure", "invalid handle", "internal error",
}

func (c Code) String() string {
	if int(c) >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// OK reports whether c is Success.
func (c Code) OK() bool { return c == Success }

var codeTypes = map[Code]qdberrors.ErrorType{
	AliasNotFound:      qdberrors.ErrorTypeAliasNotFound,
	AliasAlreadyExists: qdberrors.ErrorTypeAliasAlreadyExists,
	IncompatibleType:   qdberrors.ErrorTypeIncompatibleType,
	ColumnNotFound:     qdberrors.ErrorTypeColumnNotFound,
	EmptyColumn:        qdberrors.ErrorTypeEmptyColumn,
	InvalidArgument:    qdberrors.ErrorTypeInvalidArgument,
	TypeMismatch:       qdberrors.ErrorTypeTypeMismatch,
	PartialFailure:     qdberrors.ErrorTypePartialFailure,
	InvalidHandle:      qdberrors.ErrorTypeReleased,
	Internal:           qdberrors.ErrorTypeInternal,
}

// Translate maps a result code of operation op to an error, or nil for
// Success. It is the only place raw codes turn into qdberrors.
func Translate(c Code, op string) *qdberrors.Error {
	if c == Success {
		return nil
	}
	typ, ok := codeTypes[c]
	if !ok {
		typ = qdberrors.ErrorTypeInternal
	}
	return qdberrors.Newf(typ, "%s: %s", op, c).
		WithDetail("op", op).
		WithDetail("code", int(c))
}
