package elf

import (
	"fmt"
)

var (
	// structural / bounds
	ErrTooShort             = fmt.Errorf("buffer too short for elf64 header")
	ErrOutOfBounds          = fmt.Errorf("out of bounds")
	ErrMalformedTable       = fmt.Errorf("malformed table")
	ErrMalformedStringTable = fmt.Errorf("malformed string table")
	ErrIndexOutOfRange      = fmt.Errorf("index out of range")

	// identification
	ErrInvalidMagic      = fmt.Errorf("invalid elf magic number")
	ErrInvalidClass      = fmt.Errorf("invalid elf class")
	ErrInvalidEndianness = fmt.Errorf("invalid elf endianness")

	// semantic mismatch
	ErrWrongSectionKind    = fmt.Errorf("wrong section kind")
	ErrWrongSegmentKind    = fmt.Errorf("wrong segment kind")
	ErrInvalidDynamicEntry = fmt.Errorf("invalid dynamic entry")

	// missing required data
	ErrSectionNotFound     = fmt.Errorf("section not found")
	ErrUnresolvableLink    = fmt.Errorf("unresolvable section link")
	ErrMissingDynamicEntry = fmt.Errorf("missing required dynamic entry")
)
