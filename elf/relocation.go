package elf

import (
	"fmt"
)

// RelocationEntry is either relocation record shape.  The type and symbol
// index accessors are promoted from the embedded RelocationInfo.
type RelocationEntry interface {
	Rel | Rela

	Type() uint32
	SymbolIndex() uint32
}

// RelocationTable is a view of Rel or Rela records.  The table does not
// resolve symbols; join SymbolIndex() against the matching SymbolTable.
type RelocationTable[T RelocationEntry] struct {
	Table[T]
}

type relocationKind struct {
	sectionType uint32

	addressTag   uint64
	sizeTag      uint64
	entrySizeTag uint64
}

var (
	relKind = relocationKind{
		sectionType:  SectionTypeRelocationNoAddends,
		addressTag:   DynamicTagRel,
		sizeTag:      DynamicTagRelSize,
		entrySizeTag: DynamicTagRelEntrySize,
	}

	relaKind = relocationKind{
		sectionType:  SectionTypeRelocationWithAddends,
		addressTag:   DynamicTagRela,
		sizeTag:      DynamicTagRelaSize,
		entrySizeTag: DynamicTagRelaEntrySize,
	}
)

func kindOf[T RelocationEntry]() relocationKind {
	var entry T
	switch any(entry).(type) {
	case Rel:
		return relKind
	case Rela:
		return relaKind
	default:
		panic("should never happen")
	}
}

// ParseRelocationSection parses a SHT_RELA (Rela) or SHT_REL (Rel) section.
func ParseRelocationSection[T RelocationEntry](
	headers *Headers,
	header SectionHeader,
) (
	*RelocationTable[T],
	error,
) {
	kind := kindOf[T]()
	if header.Type != kind.sectionType {
		return nil, fmt.Errorf(
			"%w. section type (%d) is not a relocation table (%d)",
			ErrWrongSectionKind,
			header.Type,
			kind.sectionType)
	}

	content, err := header.Content(headers.content)
	if err != nil {
		return nil, err
	}

	table, err := newSizedTable[T](content, header.EntrySize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relocation table: %w", err)
	}

	return &RelocationTable[T]{
		Table: table,
	}, nil
}

// ParseRelocationsFromDynamic locates the relocation table through the
// dynamic table's address / size / entry size entries (DT_RELA, DT_RELASZ,
// DT_RELAENT for Rela; DT_REL, DT_RELSZ, DT_RELENT for Rel).  The address is
// a link time virtual address, rebased onto the image's load base.
func ParseRelocationsFromDynamic[T RelocationEntry](
	image Image,
	dynamic *DynamicTable,
) (
	*RelocationTable[T],
	error,
) {
	kind := kindOf[T]()

	values, err := dynamic.RequireEntries(
		kind.addressTag,
		kind.sizeTag,
		kind.entrySizeTag)
	if err != nil {
		return nil, fmt.Errorf("failed to locate relocation table: %w", err)
	}

	return readRelocations[T](image, values[0], values[1], values[2])
}

// ParsePltRelocationsFromDynamic locates the PLT relocations through
// DT_JMPREL / DT_PLTRELSZ.  DT_PLTREL must name the Rela shape.
func ParsePltRelocationsFromDynamic(
	image Image,
	dynamic *DynamicTable,
) (
	*RelocationTable[Rela],
	error,
) {
	values, err := dynamic.RequireEntries(
		DynamicTagJumpRelocations,
		DynamicTagPLTRelocationsSize,
		DynamicTagPLTRelocationType)
	if err != nil {
		return nil, fmt.Errorf("failed to locate plt relocation table: %w", err)
	}

	if values[2] != DynamicTagRela {
		return nil, fmt.Errorf(
			"%w. plt relocation type (%d) is not DT_RELA",
			ErrInvalidDynamicEntry,
			values[2])
	}

	return readRelocations[Rela](
		image,
		values[0],
		values[1],
		Elf64RelaEntrySize)
}

func readRelocations[T RelocationEntry](
	image Image,
	address uint64,
	size uint64,
	entrySize uint64,
) (
	*RelocationTable[T],
	error,
) {
	content, err := image.Bytes(address, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read relocation table: %w", err)
	}

	table, err := newSizedTable[T](content, entrySize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relocation table: %w", err)
	}

	return &RelocationTable[T]{
		Table: table,
	}, nil
}
