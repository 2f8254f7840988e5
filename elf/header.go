// Based on linux's man page, elf.h, golang's debug/elf package,
// and the elf 1.2 spec.
//
// Only 64-bit little endian objects are supported.  The raw records below
// are decoded field by field from the backing buffer; they carry no
// interpretation beyond what is needed to locate other tables.  See the
// parsed package for the typed view.
package elf

import (
	"unsafe"
)

var (
	// EI_MAG0 - EI_MAG3
	IdentifierMagic = []byte{
		0x7f, // ELFMAG0
		'E',  // ELFMAG1
		'L',  // ELFMAG2
		'F',  // ELFMAG3
	}
)

const (
	ClassNone = 0 // ELFCLASSNONE
	Class32   = 1 // ELFCLASS32
	Class64   = 2 // ELFCLASS64

	DataEncodingNone         = 0 // ELFDATANONE
	DataEncodingLittleEndian = 1 // ELFDATA2LSB
	DataEncodingBigEndian    = 2 // ELFDATA2MSB

	SectionIndexUndefined = 0      // SHN_UNDEF
	SectionIndexAbsolute  = 0xfff1 // SHN_ABS
	SectionIndexCommon    = 0xfff2 // SHN_COMMON

	SectionStringTableName = ".shstrtab"
	StringTableName        = ".strtab"
	SymbolTableName        = ".symtab"
	DynamicSymbolTableName = ".dynsym"
	DynamicStringTableName = ".dynstr"
	DynamicName            = ".dynamic"
)

const (
	ElfIdentifierSize           = 16
	Elf64HeaderSize             = 64
	Elf64ProgramHeaderEntrySize = 0x38
	Elf64SectionHeaderEntrySize = 0x40
	Elf64SymbolEntrySize        = 24
	Elf64RelEntrySize           = 16
	Elf64RelaEntrySize          = 24
	Elf64DynamicEntrySize       = 16
)

// p_type
const (
	ProgramTypeNull        = 0          // PT_NULL
	ProgramTypeLoadable    = 1          // PT_LOAD
	ProgramTypeDynamic     = 2          // PT_DYNAMIC
	ProgramTypeInterpreter = 3          // PT_INTERP
	ProgramTypeNote        = 4          // PT_NOTE
	ProgramTypeSharedLib   = 5          // PT_SHLIB
	ProgramTypeHeaderInfo  = 6          // PT_PHDR
	ProgramTypeTLS         = 7          // PT_TLS
	ProgramTypeGNUEHFrame  = 0x6474e550 // PT_GNU_EH_FRAME
	ProgramTypeGNUStack    = 0x6474e551 // PT_GNU_STACK
	ProgramTypeGNURelRO    = 0x6474e552 // PT_GNU_RELRO
	ProgramTypeGNUProperty = 0x6474e553 // PT_GNU_PROPERTY
)

// sh_type
const (
	SectionTypeNull                  = 0  // SHT_NULL
	SectionTypeProgramDefinedInfo    = 1  // SHT_PROGBITS
	SectionTypeSymbolTable           = 2  // SHT_SYMTAB
	SectionTypeStringTable           = 3  // SHT_STRTAB
	SectionTypeRelocationWithAddends = 4  // SHT_RELA
	SectionTypeSymbolHashTable       = 5  // SHT_HASH
	SectionTypeDynamic               = 6  // SHT_DYNAMIC
	SectionTypeNote                  = 7  // SHT_NOTE
	SectionTypeNoSpace               = 8  // SHT_NOBITS
	SectionTypeRelocationNoAddends   = 9  // SHT_REL
	SectionTypeSharedLib             = 10 // SHT_SHLIB
	SectionTypeDynamicSymbolTable    = 11 // SHT_DYNSYM
	SectionTypeInitArray             = 14 // SHT_INIT_ARRAY
	SectionTypeFiniArray             = 15 // SHT_FINI_ARRAY
	SectionTypePreinitArray          = 16 // SHT_PREINIT_ARRAY
	SectionTypeGroup                 = 17 // SHT_GROUP
	SectionTypeSymbolTableIndices    = 18 // SHT_SYMTAB_SHNDX
)

// d_tag
const (
	DynamicTagNull               = 0  // DT_NULL
	DynamicTagNeeded             = 1  // DT_NEEDED
	DynamicTagPLTRelocationsSize = 2  // DT_PLTRELSZ
	DynamicTagPLTGOT             = 3  // DT_PLTGOT
	DynamicTagHash               = 4  // DT_HASH
	DynamicTagStringTable        = 5  // DT_STRTAB
	DynamicTagSymbolTable        = 6  // DT_SYMTAB
	DynamicTagRela               = 7  // DT_RELA
	DynamicTagRelaSize           = 8  // DT_RELASZ
	DynamicTagRelaEntrySize      = 9  // DT_RELAENT
	DynamicTagStringTableSize    = 10 // DT_STRSZ
	DynamicTagSymbolEntrySize    = 11 // DT_SYMENT
	DynamicTagInit               = 12 // DT_INIT
	DynamicTagFini               = 13 // DT_FINI
	DynamicTagSharedObjectName   = 14 // DT_SONAME
	DynamicTagRPath              = 15 // DT_RPATH
	DynamicTagSymbolic           = 16 // DT_SYMBOLIC
	DynamicTagRel                = 17 // DT_REL
	DynamicTagRelSize            = 18 // DT_RELSZ
	DynamicTagRelEntrySize       = 19 // DT_RELENT
	DynamicTagPLTRelocationType  = 20 // DT_PLTREL
	DynamicTagDebug              = 21 // DT_DEBUG
	DynamicTagTextRel            = 22 // DT_TEXTREL
	DynamicTagJumpRelocations    = 23 // DT_JMPREL
	DynamicTagBindNow            = 24 // DT_BIND_NOW
	DynamicTagInitArray          = 25 // DT_INIT_ARRAY
	DynamicTagFiniArray          = 26 // DT_FINI_ARRAY
	DynamicTagInitArraySize      = 27 // DT_INIT_ARRAYSZ
	DynamicTagFiniArraySize      = 28 // DT_FINI_ARRAYSZ
	DynamicTagRunPath            = 29 // DT_RUNPATH
	DynamicTagFlags              = 30 // DT_FLAGS
)

// e_ident
type Identifier struct {
	Magic              [4]byte // EI_MAG0 ... EI_MAG3
	Class              byte    // EI_CLASS
	DataEncoding       byte    // EI_DATA
	IdentifierVersion  byte    // EI_VERSION
	OperatingSystemABI byte    // EI_OSABI
	ABIVersion         byte    // EI_ABIVERSION
	Padding            [7]byte // EI_PAD
}

// Elf64_Ehdr
type FileHeader struct {
	Identifier                     // e_ident[EI_NIDENT]
	FileType                uint16 // e_type
	MachineArchitecture     uint16 // e_machine
	FormatVersion           uint32 // e_version
	EntryPointAddress       uint64 // e_entry
	ProgramHeaderOffset     uint64 // e_phoff
	SectionHeaderOffset     uint64 // e_shoff
	ArchitectureFlags       uint32 // e_flags
	ElfHeaderSize           uint16 // e_ehsize
	ProgramHeaderEntrySize  uint16 // e_phentsize
	NumProgramHeaderEntries uint16 // e_phnum
	SectionHeaderEntrySize  uint16 // e_shentsize
	NumSectionHeaderEntries uint16 // e_shnum
	SectionStringTableIndex uint16 // e_shstrndx
}

// Elf64_Phdr
type ProgramHeader struct {
	Type            uint32 // p_type
	Flags           uint32 // p_flags
	ContentOffset   uint64 // p_offset
	VirtualAddress  uint64 // p_vaddr
	PhysicalAddress uint64 // p_paddr
	FileImageSize   uint64 // p_filesz
	MemoryImageSize uint64 // p_memsz
	Alignment       uint64 // p_align
}

// Elf64_Shdr
type SectionHeader struct {
	NameIndex        uint32 // sh_name
	Type             uint32 // sh_type
	Flags            uint64 // sh_flags
	Address          uint64 // sh_addr
	Offset           uint64 // sh_offset
	Size             uint64 // sh_size
	Link             uint32 // sh_link
	Info             uint32 // sh_info
	AddressAlignment uint64 // sh_addralign
	EntrySize        uint64 // sh_entsize
}

// Elf64_Sym
type Symbol struct {
	NameIndex    uint32 // st_name
	Info         byte   // st_info.  (4 bits st_bind, 4 bits st_type)
	Other        byte   // st_other
	SectionIndex uint16 // st_shndx
	Value        uint64 // st_value
	Size         uint64 // st_size
}

// The bottom 4 bits of st_info
func (symbol Symbol) Type() byte {
	return symbol.Info & 0xf
}

// The top 4 bits of st_info
func (symbol Symbol) Binding() byte {
	return symbol.Info >> 4
}

// The bottom 2 bits of st_other
func (symbol Symbol) Visibility() byte {
	return symbol.Other & 0x3
}

// r_info.  The low 32 bits hold the (architecture specific) relocation type,
// the high 32 bits hold the symbol table index.
type RelocationInfo uint64

func NewRelocationInfo(symbolIndex uint32, relocationType uint32) RelocationInfo {
	return RelocationInfo(uint64(symbolIndex)<<32 | uint64(relocationType))
}

func (info RelocationInfo) Type() uint32 {
	return uint32(info & 0xffffffff)
}

func (info RelocationInfo) SymbolIndex() uint32 {
	return uint32(info >> 32)
}

// Elf64_Rel
type Rel struct {
	Offset         uint64 // r_offset
	RelocationInfo        // r_info
}

// Elf64_Rela
type Rela struct {
	Offset         uint64 // r_offset
	RelocationInfo        // r_info
	Addend         int64  // r_addend
}

// Elf64_Dyn
type Dynamic struct {
	Tag   uint64 // d_tag
	Value uint64 // d_un
}

// Layout checks.  Each index is a compile time constant that is only in range
// when the go struct matches the elf64 record byte for byte.
var (
	_ = [1]struct{}{}[unsafe.Sizeof(Identifier{})-ElfIdentifierSize]
	_ = [1]struct{}{}[unsafe.Sizeof(FileHeader{})-Elf64HeaderSize]
	_ = [1]struct{}{}[unsafe.Sizeof(ProgramHeader{})-Elf64ProgramHeaderEntrySize]
	_ = [1]struct{}{}[unsafe.Sizeof(SectionHeader{})-Elf64SectionHeaderEntrySize]
	_ = [1]struct{}{}[unsafe.Sizeof(Symbol{})-Elf64SymbolEntrySize]
	_ = [1]struct{}{}[unsafe.Sizeof(Rel{})-Elf64RelEntrySize]
	_ = [1]struct{}{}[unsafe.Sizeof(Rela{})-Elf64RelaEntrySize]
	_ = [1]struct{}{}[unsafe.Sizeof(Dynamic{})-Elf64DynamicEntrySize]
)
