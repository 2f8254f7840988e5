package elf

import (
	"fmt"
)

// DynamicTable is a view of the (tag, value) pairs of a SHT_DYNAMIC section
// or PT_DYNAMIC segment.  The entry count is derived from the section /
// segment size; the DT_NULL terminator is not used to bound the table.
type DynamicTable struct {
	Table[Dynamic]
}

func ParseDynamicSection(
	content []byte,
	header SectionHeader,
) (
	*DynamicTable,
	error,
) {
	if header.Type != SectionTypeDynamic {
		return nil, fmt.Errorf(
			"%w. section type (%d) is not a dynamic table",
			ErrWrongSectionKind,
			header.Type)
	}

	span, err := header.Content(content)
	if err != nil {
		return nil, err
	}

	table, err := newSizedTable[Dynamic](span, header.EntrySize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dynamic table: %w", err)
	}

	return &DynamicTable{
		Table: table,
	}, nil
}

// ParseDynamicSegment reads the dynamic table out of a loaded image.  All
// loadable segments must already be mapped into the image.
func ParseDynamicSegment(
	image Image,
	header ProgramHeader,
) (
	*DynamicTable,
	error,
) {
	if header.Type != ProgramTypeDynamic {
		return nil, fmt.Errorf(
			"%w. program type (%#x) is not a dynamic segment",
			ErrWrongSegmentKind,
			header.Type)
	}

	// p_memsz may include alignment padding past the last entry.
	size := header.MemoryImageSize -
		header.MemoryImageSize%Elf64DynamicEntrySize

	span, err := image.Bytes(header.VirtualAddress, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic segment: %w", err)
	}

	table, err := newSizedTable[Dynamic](span, Elf64DynamicEntrySize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dynamic table: %w", err)
	}

	return &DynamicTable{
		Table: table,
	}, nil
}

// FindEntry returns the first entry with the given tag.
func (table *DynamicTable) FindEntry(tag uint64) (Dynamic, bool) {
	for _, entry := range table.All() {
		if entry.Tag == tag {
			return entry, true
		}
	}

	return Dynamic{}, false
}

func (table *DynamicTable) HasRelocations() bool {
	_, ok := table.FindEntry(DynamicTagRela)
	return ok
}

// RequireEntries returns the values of all the given tags, in order.  A
// missing tag is an error; it is never defaulted to zero.
func (table *DynamicTable) RequireEntries(tags ...uint64) ([]uint64, error) {
	values := make([]uint64, 0, len(tags))
	for _, tag := range tags {
		entry, ok := table.FindEntry(tag)
		if !ok {
			return nil, fmt.Errorf(
				"%w. incomplete dynamic section, tag (%d) not found",
				ErrMissingDynamicEntry,
				tag)
		}

		values = append(values, entry.Value)
	}

	return values, nil
}
