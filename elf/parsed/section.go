package parsed

import (
	"fmt"
	"strings"

	"github.com/pattyshack/elfinfo/elf"
)

// sh_type
type SectionType uint32

const (
	SectionNull                  = SectionType(elf.SectionTypeNull)
	SectionProgramDefinedInfo    = SectionType(elf.SectionTypeProgramDefinedInfo)
	SectionSymbolTable           = SectionType(elf.SectionTypeSymbolTable)
	SectionStringTable           = SectionType(elf.SectionTypeStringTable)
	SectionRelocationWithAddends = SectionType(elf.SectionTypeRelocationWithAddends)
	SectionSymbolHashTable       = SectionType(elf.SectionTypeSymbolHashTable)
	SectionDynamic               = SectionType(elf.SectionTypeDynamic)
	SectionNote                  = SectionType(elf.SectionTypeNote)
	SectionNoSpace               = SectionType(elf.SectionTypeNoSpace)
	SectionRelocationNoAddends   = SectionType(elf.SectionTypeRelocationNoAddends)
	SectionSharedLib             = SectionType(elf.SectionTypeSharedLib)
	SectionDynamicSymbolTable    = SectionType(elf.SectionTypeDynamicSymbolTable)
	SectionInitArray             = SectionType(elf.SectionTypeInitArray)
	SectionFiniArray             = SectionType(elf.SectionTypeFiniArray)
	SectionPreinitArray          = SectionType(elf.SectionTypePreinitArray)
	SectionGroup                 = SectionType(elf.SectionTypeGroup)
	SectionSymbolTableIndices    = SectionType(elf.SectionTypeSymbolTableIndices)

	SectionGNUAttributes = SectionType(0x6ffffff5) // SHT_GNU_ATTRIBUTES
	SectionGNUHash       = SectionType(0x6ffffff6) // SHT_GNU_HASH
	SectionGNUVerdef     = SectionType(0x6ffffffd) // SHT_GNU_verdef
	SectionGNUVerneed    = SectionType(0x6ffffffe) // SHT_GNU_verneed
	SectionGNUVersym     = SectionType(0x6fffffff) // SHT_GNU_versym
)

func (sectionType SectionType) Code() uint32 {
	return uint32(sectionType)
}

func (sectionType SectionType) String() string {
	switch sectionType {
	case SectionNull:
		return "NULL"
	case SectionProgramDefinedInfo:
		return "PROGBITS"
	case SectionSymbolTable:
		return "SYMTAB"
	case SectionStringTable:
		return "STRTAB"
	case SectionRelocationWithAddends:
		return "RELA"
	case SectionSymbolHashTable:
		return "HASH"
	case SectionDynamic:
		return "DYNAMIC"
	case SectionNote:
		return "NOTE"
	case SectionNoSpace:
		return "NOBITS"
	case SectionRelocationNoAddends:
		return "REL"
	case SectionSharedLib:
		return "SHLIB"
	case SectionDynamicSymbolTable:
		return "DYNSYM"
	case SectionInitArray:
		return "INIT_ARRAY"
	case SectionFiniArray:
		return "FINI_ARRAY"
	case SectionPreinitArray:
		return "PREINIT_ARRAY"
	case SectionGroup:
		return "GROUP"
	case SectionSymbolTableIndices:
		return "SYMTAB_SHNDX"
	case SectionGNUAttributes:
		return "GNU_ATTRIBUTES"
	case SectionGNUHash:
		return "GNU_HASH"
	case SectionGNUVerdef:
		return "VERDEF"
	case SectionGNUVerneed:
		return "VERNEED"
	case SectionGNUVersym:
		return "VERSYM"
	default:
		return fmt.Sprintf("%#08x", uint32(sectionType))
	}
}

// sh_flags
type SectionFlags uint64

const (
	SectionWrite           = SectionFlags(0x1)   // SHF_WRITE
	SectionAlloc           = SectionFlags(0x2)   // SHF_ALLOC
	SectionExecInstr       = SectionFlags(0x4)   // SHF_EXECINSTR
	SectionMerge           = SectionFlags(0x10)  // SHF_MERGE
	SectionStrings         = SectionFlags(0x20)  // SHF_STRINGS
	SectionInfoLink        = SectionFlags(0x40)  // SHF_INFO_LINK
	SectionLinkOrder       = SectionFlags(0x80)  // SHF_LINK_ORDER
	SectionOSNonconforming = SectionFlags(0x100) // SHF_OS_NONCONFORMING
	SectionGroupMember     = SectionFlags(0x200) // SHF_GROUP
	SectionTLS             = SectionFlags(0x400) // SHF_TLS
	SectionCompressed      = SectionFlags(0x800) // SHF_COMPRESSED
)

var sectionFlagLetters = []struct {
	flag   SectionFlags
	letter byte
}{
	{SectionWrite, 'W'},
	{SectionAlloc, 'A'},
	{SectionExecInstr, 'X'},
	{SectionMerge, 'M'},
	{SectionStrings, 'S'},
	{SectionInfoLink, 'I'},
	{SectionLinkOrder, 'L'},
	{SectionOSNonconforming, 'O'},
	{SectionGroupMember, 'G'},
	{SectionTLS, 'T'},
	{SectionCompressed, 'C'},
}

func (flags SectionFlags) Code() uint64 {
	return uint64(flags)
}

func (flags SectionFlags) Has(flag SectionFlags) bool {
	return flags&flag == flag
}

// String returns readelf's flag key letters, e.g., "WA".  Unnamed bits are
// displayed as a single 'x'.
func (flags SectionFlags) String() string {
	builder := strings.Builder{}

	remaining := flags
	for _, entry := range sectionFlagLetters {
		if flags.Has(entry.flag) {
			builder.WriteByte(entry.letter)
			remaining &^= entry.flag
		}
	}

	if remaining != 0 {
		builder.WriteByte('x')
	}

	return builder.String()
}

type Section struct {
	Index int
	Name  string

	Type  SectionType
	Flags SectionFlags

	Address   uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Alignment uint64
	EntrySize uint64
}

func NewSection(index int, name string, header elf.SectionHeader) Section {
	return Section{
		Index:     index,
		Name:      name,
		Type:      SectionType(header.Type),
		Flags:     SectionFlags(header.Flags),
		Address:   header.Address,
		Offset:    header.Offset,
		Size:      header.Size,
		Link:      header.Link,
		Info:      header.Info,
		Alignment: header.AddressAlignment,
		EntrySize: header.EntrySize,
	}
}
