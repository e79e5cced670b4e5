package state

import "errors"

var (
	ErrUnknownState        = errors.New("unknown state")
	ErrDuplicateState      = errors.New("state already registered")
	ErrMissingParent       = errors.New("parent value is missing")
	ErrMissingListIndex    = errors.New("wildcard path requires a list index")
	ErrInsufficientIndexes = errors.New("not enough indexes for wildcard path")
	ErrTooManyIndexes      = errors.New("more indexes than wildcards in path")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrPartialWildcard     = errors.New("partial wildcard resolution is not supported")
	ErrNotList             = errors.New("value is not a list")
	ErrNotObject           = errors.New("value is not an object")
	ErrReadOnly            = errors.New("getter path has no setter")
	ErrInvalidDefinition   = errors.New("invalid state definition")
)
