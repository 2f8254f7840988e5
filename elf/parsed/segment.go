package parsed

import (
	"fmt"
	"strings"

	"github.com/pattyshack/elfinfo/elf"
)

// p_type
type SegmentType uint32

const (
	SegmentNull        = SegmentType(elf.ProgramTypeNull)
	SegmentLoad        = SegmentType(elf.ProgramTypeLoadable)
	SegmentDynamic     = SegmentType(elf.ProgramTypeDynamic)
	SegmentInterpreter = SegmentType(elf.ProgramTypeInterpreter)
	SegmentNote        = SegmentType(elf.ProgramTypeNote)
	SegmentSharedLib   = SegmentType(elf.ProgramTypeSharedLib)
	SegmentHeaderInfo  = SegmentType(elf.ProgramTypeHeaderInfo)
	SegmentTLS         = SegmentType(elf.ProgramTypeTLS)

	SegmentGNUEHFrame  = SegmentType(elf.ProgramTypeGNUEHFrame)
	SegmentGNUStack    = SegmentType(elf.ProgramTypeGNUStack)
	SegmentGNURelRO    = SegmentType(elf.ProgramTypeGNURelRO)
	SegmentGNUProperty = SegmentType(elf.ProgramTypeGNUProperty)

	SegmentLowOS    = SegmentType(0x60000000) // PT_LOOS
	SegmentHighOS   = SegmentType(0x6fffffff) // PT_HIOS
	SegmentLowProc  = SegmentType(0x70000000) // PT_LOPROC
	SegmentHighProc = SegmentType(0x7fffffff) // PT_HIPROC
)

func (segmentType SegmentType) Code() uint32 {
	return uint32(segmentType)
}

// IsKnown reports whether the type has a name.  Unknown types are still
// valid segment types.
func (segmentType SegmentType) IsKnown() bool {
	_, ok := segmentType.name()
	return ok
}

func (segmentType SegmentType) name() (string, bool) {
	switch segmentType {
	case SegmentNull:
		return "NULL", true
	case SegmentLoad:
		return "LOAD", true
	case SegmentDynamic:
		return "DYNAMIC", true
	case SegmentInterpreter:
		return "INTERP", true
	case SegmentNote:
		return "NOTE", true
	case SegmentSharedLib:
		return "SHLIB", true
	case SegmentHeaderInfo:
		return "PHDR", true
	case SegmentTLS:
		return "TLS", true
	case SegmentGNUEHFrame:
		return "GNU_EH_FRAME", true
	case SegmentGNUStack:
		return "GNU_STACK", true
	case SegmentGNURelRO:
		return "GNU_RELRO", true
	case SegmentGNUProperty:
		return "GNU_PROPERTY", true
	}

	if SegmentLowOS <= segmentType && segmentType <= SegmentHighOS {
		return "LOOS+", false
	}

	if SegmentLowProc <= segmentType && segmentType <= SegmentHighProc {
		return "LOPROC+", false
	}

	return "UNKNOWN", false
}

// String returns the type's name.  Unknown types are displayed as
// "<label> (0x<code>)".
func (segmentType SegmentType) String() string {
	name, ok := segmentType.name()
	if ok {
		return name
	}

	return fmt.Sprintf("%s (%#x)", name, uint32(segmentType))
}

// p_flags
type SegmentFlags uint32

const (
	SegmentExecute = SegmentFlags(0x1) // PF_X
	SegmentWrite   = SegmentFlags(0x2) // PF_W
	SegmentRead    = SegmentFlags(0x4) // PF_R
)

func (flags SegmentFlags) Code() uint32 {
	return uint32(flags)
}

func (flags SegmentFlags) Has(flag SegmentFlags) bool {
	return flags&flag == flag
}

// Flags returns the set permission bits, in read, write, execute order.
// Bits outside the permission bits are ignored.
func (flags SegmentFlags) Flags() []SegmentFlags {
	result := []SegmentFlags{}
	for _, flag := range []SegmentFlags{SegmentRead, SegmentWrite, SegmentExecute} {
		if flags.Has(flag) {
			result = append(result, flag)
		}
	}
	return result
}

// String returns the readelf style permission string, e.g., "R E".
func (flags SegmentFlags) String() string {
	builder := strings.Builder{}
	for _, entry := range []struct {
		flag   SegmentFlags
		letter byte
	}{
		{SegmentRead, 'R'},
		{SegmentWrite, 'W'},
		{SegmentExecute, 'E'},
	} {
		if flags.Has(entry.flag) {
			builder.WriteByte(entry.letter)
		} else {
			builder.WriteByte(' ')
		}
	}

	return builder.String()
}

type Segment struct {
	Index int

	Type  SegmentType
	Flags SegmentFlags

	Offset          uint64
	VirtualAddress  uint64
	PhysicalAddress uint64
	FileSize        uint64
	MemorySize      uint64
	Alignment       uint64
}

func NewSegment(index int, header elf.ProgramHeader) Segment {
	return Segment{
		Index:           index,
		Type:            SegmentType(header.Type),
		Flags:           SegmentFlags(header.Flags),
		Offset:          header.ContentOffset,
		VirtualAddress:  header.VirtualAddress,
		PhysicalAddress: header.PhysicalAddress,
		FileSize:        header.FileImageSize,
		MemorySize:      header.MemoryImageSize,
		Alignment:       header.Alignment,
	}
}

// CheckSizes verifies that a loadable segment's file image fits in its
// memory image.  Other segment types are not checked.
func (segment Segment) CheckSizes() error {
	if segment.Type != SegmentLoad {
		return nil
	}

	if segment.FileSize > segment.MemorySize {
		return fmt.Errorf(
			"%w. segment %d's file size (%d) > memory size (%d)",
			ErrInvalidSegmentSize,
			segment.Index,
			segment.FileSize,
			segment.MemorySize)
	}

	return nil
}

// ContainsAddress reports whether address falls within the segment's memory
// image.
func (segment Segment) ContainsAddress(address uint64) bool {
	return segment.VirtualAddress <= address &&
		address-segment.VirtualAddress < segment.MemorySize
}
