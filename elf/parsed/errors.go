package parsed

import (
	"fmt"
)

var (
	ErrUnknownClass         = fmt.Errorf("unknown elf class")
	ErrUnknownDataEncoding  = fmt.Errorf("unknown elf data encoding")
	ErrUnknownObjectType    = fmt.Errorf("unknown elf object type")
	ErrUnknownSymbolType    = fmt.Errorf("unknown symbol type")
	ErrUnknownSymbolBinding = fmt.Errorf("unknown symbol binding")

	ErrInvalidSegmentSize = fmt.Errorf("invalid segment size")
)
