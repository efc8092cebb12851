package record

import "errors"

var (
	ErrPrimaryKeyConflict = errors.New("primary key conflict")
	ErrUniqueConflict     = errors.New("unique column conflict")
	ErrUnknownColumn      = errors.New("unknown column")
	ErrValueCount         = errors.New("value count does not match the table's fields")
	ErrInvalidValue       = errors.New("invalid value")
	ErrInvalidOperator    = errors.New("invalid comparison operator")
	ErrLocationOverflow   = errors.New("page number or slot does not fit in 16 bits")
	ErrCorruptChain       = errors.New("page chain is corrupt")
)
