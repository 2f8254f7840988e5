package parsed

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"

	"github.com/pattyshack/elfinfo/elf"
)

// The bottom 4 bits of st_info
type SymbolType byte

const (
	SymbolNoType   = SymbolType(0) // STT_NOTYPE
	SymbolObject   = SymbolType(1) // STT_OBJECT
	SymbolFunction = SymbolType(2) // STT_FUNC
	SymbolSection  = SymbolType(3) // STT_SECTION
	SymbolFile     = SymbolType(4) // STT_FILE
	SymbolCommon   = SymbolType(5) // STT_COMMON
	SymbolTLS      = SymbolType(6) // STT_TLS

	SymbolLowOS    = SymbolType(10) // STT_LOOS
	SymbolHighOS   = SymbolType(12) // STT_HIOS
	SymbolLowProc  = SymbolType(13) // STT_LOPROC
	SymbolHighProc = SymbolType(15) // STT_HIPROC

	// STT_GNU_IFUNC shares its code with STT_LOOS
	SymbolGNUIndirectFunction = SymbolLowOS
)

func DecodeSymbolType(code byte) (SymbolType, error) {
	symbolType := SymbolType(code)
	if symbolType <= SymbolTLS ||
		(SymbolLowOS <= symbolType && symbolType <= SymbolHighProc) {

		return symbolType, nil
	}

	return 0, fmt.Errorf("%w (%d)", ErrUnknownSymbolType, code)
}

func (symbolType SymbolType) Code() byte {
	return byte(symbolType)
}

func (symbolType SymbolType) String() string {
	switch symbolType {
	case SymbolNoType:
		return "NOTYPE"
	case SymbolObject:
		return "OBJECT"
	case SymbolFunction:
		return "FUNC"
	case SymbolSection:
		return "SECTION"
	case SymbolFile:
		return "FILE"
	case SymbolCommon:
		return "COMMON"
	case SymbolTLS:
		return "TLS"
	case SymbolGNUIndirectFunction:
		return "IFUNC"
	}

	if SymbolLowOS <= symbolType && symbolType <= SymbolHighOS {
		return fmt.Sprintf("<OS specific>: %d", byte(symbolType))
	}

	if SymbolLowProc <= symbolType && symbolType <= SymbolHighProc {
		return fmt.Sprintf("<processor specific>: %d", byte(symbolType))
	}

	return fmt.Sprintf("<unknown>: %d", byte(symbolType))
}

// The top 4 bits of st_info
type SymbolBinding byte

const (
	BindingLocal  = SymbolBinding(0) // STB_LOCAL
	BindingGlobal = SymbolBinding(1) // STB_GLOBAL
	BindingWeak   = SymbolBinding(2) // STB_WEAK

	BindingLowOS    = SymbolBinding(10) // STB_LOOS
	BindingHighOS   = SymbolBinding(12) // STB_HIOS
	BindingLowProc  = SymbolBinding(13) // STB_LOPROC
	BindingHighProc = SymbolBinding(15) // STB_HIPROC

	// STB_GNU_UNIQUE shares its code with STB_LOOS
	BindingGNUUnique = BindingLowOS
)

func DecodeSymbolBinding(code byte) (SymbolBinding, error) {
	binding := SymbolBinding(code)
	if binding <= BindingWeak ||
		(BindingLowOS <= binding && binding <= BindingHighProc) {

		return binding, nil
	}

	return 0, fmt.Errorf("%w (%d)", ErrUnknownSymbolBinding, code)
}

func (binding SymbolBinding) Code() byte {
	return byte(binding)
}

func (binding SymbolBinding) String() string {
	switch binding {
	case BindingLocal:
		return "LOCAL"
	case BindingGlobal:
		return "GLOBAL"
	case BindingWeak:
		return "WEAK"
	case BindingGNUUnique:
		return "UNIQUE"
	}

	if BindingLowOS <= binding && binding <= BindingHighOS {
		return fmt.Sprintf("<OS specific>: %d", byte(binding))
	}

	if BindingLowProc <= binding && binding <= BindingHighProc {
		return fmt.Sprintf("<processor specific>: %d", byte(binding))
	}

	return fmt.Sprintf("<unknown>: %d", byte(binding))
}

// The bottom 2 bits of st_other.  Every code is valid.
type SymbolVisibility byte

const (
	VisibilityDefault   = SymbolVisibility(0) // STV_DEFAULT
	VisibilityInternal  = SymbolVisibility(1) // STV_INTERNAL
	VisibilityHidden    = SymbolVisibility(2) // STV_HIDDEN
	VisibilityProtected = SymbolVisibility(3) // STV_PROTECTED
)

func (visibility SymbolVisibility) Code() byte {
	return byte(visibility)
}

func (visibility SymbolVisibility) String() string {
	switch visibility {
	case VisibilityDefault:
		return "DEFAULT"
	case VisibilityInternal:
		return "INTERNAL"
	case VisibilityHidden:
		return "HIDDEN"
	case VisibilityProtected:
		return "PROTECTED"
	default:
		panic("should never happen")
	}
}

type Symbol struct {
	Index int
	Name  string

	Type       SymbolType
	Binding    SymbolBinding
	Visibility SymbolVisibility

	SectionIndex uint16
	Value        uint64
	Size         uint64
}

func DecodeSymbol(index int, symbol elf.ResolvedSymbol) (Symbol, error) {
	symbolType, err := DecodeSymbolType(symbol.Type())
	if err != nil {
		return Symbol{}, fmt.Errorf("failed to decode symbol %d: %w", index, err)
	}

	binding, err := DecodeSymbolBinding(symbol.Binding())
	if err != nil {
		return Symbol{}, fmt.Errorf("failed to decode symbol %d: %w", index, err)
	}

	return Symbol{
		Index:        index,
		Name:         symbol.Name,
		Type:         symbolType,
		Binding:      binding,
		Visibility:   SymbolVisibility(symbol.Visibility()),
		SectionIndex: symbol.SectionIndex,
		Value:        symbol.Value,
		Size:         symbol.Size,
	}, nil
}

// DemangledName returns the demangled c++ / rust name.  Names that are not
// mangled are returned as is.
func (symbol Symbol) DemangledName() string {
	return demangle.Filter(symbol.Name)
}

func (symbol Symbol) IsUndefined() bool {
	return symbol.SectionIndex == elf.SectionIndexUndefined
}

// ContainsAddress reports whether address falls within the symbol's
// [value, value+size) range.
func (symbol Symbol) ContainsAddress(address uint64) bool {
	return symbol.Value <= address && address-symbol.Value < symbol.Size
}
