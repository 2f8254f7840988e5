package parsed

import (
	"fmt"

	"github.com/pattyshack/elfinfo/elf"
)

// d_tag
type DynamicTag uint64

const (
	DynamicNull                 = DynamicTag(elf.DynamicTagNull)
	DynamicNeeded               = DynamicTag(elf.DynamicTagNeeded)
	DynamicPLTRelocationsSize   = DynamicTag(elf.DynamicTagPLTRelocationsSize)
	DynamicPLTGOT               = DynamicTag(elf.DynamicTagPLTGOT)
	DynamicHash                 = DynamicTag(elf.DynamicTagHash)
	DynamicStringTable          = DynamicTag(elf.DynamicTagStringTable)
	DynamicSymbolTable          = DynamicTag(elf.DynamicTagSymbolTable)
	DynamicRela                 = DynamicTag(elf.DynamicTagRela)
	DynamicRelaSize             = DynamicTag(elf.DynamicTagRelaSize)
	DynamicRelaEntrySize        = DynamicTag(elf.DynamicTagRelaEntrySize)
	DynamicStringTableSize      = DynamicTag(elf.DynamicTagStringTableSize)
	DynamicSymbolEntrySize      = DynamicTag(elf.DynamicTagSymbolEntrySize)
	DynamicInit                 = DynamicTag(elf.DynamicTagInit)
	DynamicFini                 = DynamicTag(elf.DynamicTagFini)
	DynamicSharedObjectName     = DynamicTag(elf.DynamicTagSharedObjectName)
	DynamicRPath                = DynamicTag(elf.DynamicTagRPath)
	DynamicSymbolic             = DynamicTag(elf.DynamicTagSymbolic)
	DynamicRel                  = DynamicTag(elf.DynamicTagRel)
	DynamicRelSize              = DynamicTag(elf.DynamicTagRelSize)
	DynamicRelEntrySize         = DynamicTag(elf.DynamicTagRelEntrySize)
	DynamicPLTRelocationType    = DynamicTag(elf.DynamicTagPLTRelocationType)
	DynamicDebug                = DynamicTag(elf.DynamicTagDebug)
	DynamicTextRel              = DynamicTag(elf.DynamicTagTextRel)
	DynamicJumpRelocations      = DynamicTag(elf.DynamicTagJumpRelocations)
	DynamicBindNow              = DynamicTag(elf.DynamicTagBindNow)
	DynamicInitArray            = DynamicTag(elf.DynamicTagInitArray)
	DynamicFiniArray            = DynamicTag(elf.DynamicTagFiniArray)
	DynamicInitArraySize        = DynamicTag(elf.DynamicTagInitArraySize)
	DynamicFiniArraySize        = DynamicTag(elf.DynamicTagFiniArraySize)
	DynamicRunPath              = DynamicTag(elf.DynamicTagRunPath)
	DynamicFlags                = DynamicTag(elf.DynamicTagFlags)
	DynamicGNUHash              = DynamicTag(0x6ffffef5) // DT_GNU_HASH
	DynamicVersionSymbol        = DynamicTag(0x6ffffff0) // DT_VERSYM
	DynamicRelaCount            = DynamicTag(0x6ffffff9) // DT_RELACOUNT
	DynamicRelCount             = DynamicTag(0x6ffffffa) // DT_RELCOUNT
	DynamicFlags1               = DynamicTag(0x6ffffffb) // DT_FLAGS_1
	DynamicVersionDefinition    = DynamicTag(0x6ffffffc) // DT_VERDEF
	DynamicVersionDefinitionNum = DynamicTag(0x6ffffffd) // DT_VERDEFNUM
	DynamicVersionNeeded        = DynamicTag(0x6ffffffe) // DT_VERNEED
	DynamicVersionNeededNum     = DynamicTag(0x6fffffff) // DT_VERNEEDNUM
)

func (tag DynamicTag) Code() uint64 {
	return uint64(tag)
}

// HasStringValue reports whether the tag's value is an offset into the
// dynamic string table.
func (tag DynamicTag) HasStringValue() bool {
	switch tag {
	case DynamicNeeded, DynamicSharedObjectName, DynamicRPath, DynamicRunPath:
		return true
	default:
		return false
	}
}

func (tag DynamicTag) String() string {
	switch tag {
	case DynamicNull:
		return "NULL"
	case DynamicNeeded:
		return "NEEDED"
	case DynamicPLTRelocationsSize:
		return "PLTRELSZ"
	case DynamicPLTGOT:
		return "PLTGOT"
	case DynamicHash:
		return "HASH"
	case DynamicStringTable:
		return "STRTAB"
	case DynamicSymbolTable:
		return "SYMTAB"
	case DynamicRela:
		return "RELA"
	case DynamicRelaSize:
		return "RELASZ"
	case DynamicRelaEntrySize:
		return "RELAENT"
	case DynamicStringTableSize:
		return "STRSZ"
	case DynamicSymbolEntrySize:
		return "SYMENT"
	case DynamicInit:
		return "INIT"
	case DynamicFini:
		return "FINI"
	case DynamicSharedObjectName:
		return "SONAME"
	case DynamicRPath:
		return "RPATH"
	case DynamicSymbolic:
		return "SYMBOLIC"
	case DynamicRel:
		return "REL"
	case DynamicRelSize:
		return "RELSZ"
	case DynamicRelEntrySize:
		return "RELENT"
	case DynamicPLTRelocationType:
		return "PLTREL"
	case DynamicDebug:
		return "DEBUG"
	case DynamicTextRel:
		return "TEXTREL"
	case DynamicJumpRelocations:
		return "JMPREL"
	case DynamicBindNow:
		return "BIND_NOW"
	case DynamicInitArray:
		return "INIT_ARRAY"
	case DynamicFiniArray:
		return "FINI_ARRAY"
	case DynamicInitArraySize:
		return "INIT_ARRAYSZ"
	case DynamicFiniArraySize:
		return "FINI_ARRAYSZ"
	case DynamicRunPath:
		return "RUNPATH"
	case DynamicFlags:
		return "FLAGS"
	case DynamicGNUHash:
		return "GNU_HASH"
	case DynamicVersionSymbol:
		return "VERSYM"
	case DynamicRelaCount:
		return "RELACOUNT"
	case DynamicRelCount:
		return "RELCOUNT"
	case DynamicFlags1:
		return "FLAGS_1"
	case DynamicVersionDefinition:
		return "VERDEF"
	case DynamicVersionDefinitionNum:
		return "VERDEFNUM"
	case DynamicVersionNeeded:
		return "VERNEED"
	case DynamicVersionNeededNum:
		return "VERNEEDNUM"
	default:
		return fmt.Sprintf("%#x", uint64(tag))
	}
}

type DynamicEntry struct {
	Tag   DynamicTag
	Value uint64

	// Set for tags with string values (DT_NEEDED, DT_SONAME, etc.)
	StringValue string
}
