package parsed

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/pattyshack/elfinfo/elf"
)

// File is the parsed view of an elf64 file.  Sections and segments are
// decoded eagerly; symbols, relocations and dynamic entries are decoded on
// request.
type File struct {
	Header

	Segments []Segment
	Sections []Section

	raw *elf.Headers
}

// Parse decodes content.  content must not be modified while the file is in
// use.
func Parse(content []byte) (*File, error) {
	raw, err := elf.ParseBytes(content)
	if err != nil {
		return nil, err
	}

	return NewFile(raw)
}

func NewFile(raw *elf.Headers) (*File, error) {
	header, err := DecodeHeader(raw.FileHeader)
	if err != nil {
		return nil, err
	}

	segments := []Segment{}
	for idx, programHeader := range raw.ProgramHeaders.All() {
		segments = append(segments, NewSegment(idx, programHeader))
	}

	sections := []Section{}
	for idx, sectionHeader := range raw.SectionHeaders.All() {
		name := ""
		if raw.SectionNames != nil {
			name, err = raw.SectionName(sectionHeader)
			if err != nil {
				return nil, fmt.Errorf(
					"failed to resolve section %d's name: %w",
					idx,
					err)
			}
		}

		sections = append(sections, NewSection(idx, name, sectionHeader))
	}

	return &File{
		Header:   header,
		Segments: segments,
		Sections: sections,
		raw:      raw,
	}, nil
}

// Raw returns the underlying raw view.
func (file *File) Raw() *elf.Headers {
	return file.raw
}

func (file *File) SectionByName(name string) (Section, bool) {
	idx, ok := file.raw.SectionIndexByName(name)
	if !ok {
		return Section{}, false
	}

	return file.Sections[idx], true
}

// FindSection returns the first section of the given type.
func (file *File) FindSection(sectionType SectionType) (Section, bool) {
	return lo.Find(file.Sections, func(section Section) bool {
		return section.Type == sectionType
	})
}

func (file *File) sectionHeader(section Section) elf.SectionHeader {
	header, ok := file.raw.SectionHeaderByIndex(section.Index)
	if !ok {
		panic("should never happen")
	}

	return header
}

// SectionContent returns the section's bytes, borrowed from the file's
// buffer.
func (file *File) SectionContent(section Section) ([]byte, error) {
	return file.raw.SectionContent(file.sectionHeader(section))
}

// Symbols decodes the first symbol table of the given type (SymbolTable or
// DynamicSymbolTable).
func (file *File) Symbols(sectionType SectionType) ([]Symbol, error) {
	section, ok := file.FindSection(sectionType)
	if !ok {
		return nil, fmt.Errorf(
			"%w. no %s section",
			elf.ErrSectionNotFound,
			sectionType)
	}

	return file.SectionSymbols(section)
}

// SectionSymbols decodes every symbol in the given symbol table section.
func (file *File) SectionSymbols(section Section) ([]Symbol, error) {
	table, err := elf.NewSymbolTable(file.raw, file.sectionHeader(section))
	if err != nil {
		return nil, fmt.Errorf(
			"failed to parse symbol table (%s): %w",
			section.Name,
			err)
	}

	return decodeSymbols(table)
}

func decodeSymbols(table *elf.SymbolTable) ([]Symbol, error) {
	symbols := make([]Symbol, 0, table.Len())
	for resolved, err := range table.ResolvedSymbols() {
		if err != nil {
			return nil, fmt.Errorf(
				"failed to resolve symbol %d: %w",
				len(symbols),
				err)
		}

		symbol, err := DecodeSymbol(len(symbols), resolved)
		if err != nil {
			return nil, err
		}

		symbols = append(symbols, symbol)
	}

	return symbols, nil
}

// SymbolAt returns the function or object symbol whose [value, value+size)
// range contains address.
func SymbolAt(symbols []Symbol, address uint64) (Symbol, bool) {
	return lo.Find(symbols, func(symbol Symbol) bool {
		return (symbol.Type == SymbolFunction || symbol.Type == SymbolObject) &&
			symbol.ContainsAddress(address)
	})
}

// SymbolsByName returns the symbols with the given name, in table order.
func SymbolsByName(symbols []Symbol, name string) []Symbol {
	return lo.Filter(symbols, func(symbol Symbol, _ int) bool {
		return symbol.Name == name
	})
}

type RelocationSection struct {
	Section

	Relocations []Relocation
}

// RelocationSections decodes every SHT_RELA and SHT_REL section, with
// symbols resolved against the symbol table named by each section's sh_link.
func (file *File) RelocationSections() ([]RelocationSection, error) {
	result := []RelocationSection{}
	for _, section := range file.Sections {
		var relocations []Relocation
		var err error
		switch section.Type {
		case SectionRelocationWithAddends:
			relocations, err = parseRelocationSection[elf.Rela](file, section)
		case SectionRelocationNoAddends:
			relocations, err = parseRelocationSection[elf.Rel](file, section)
		default:
			continue
		}

		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse relocation section (%s): %w",
				section.Name,
				err)
		}

		result = append(
			result,
			RelocationSection{
				Section:     section,
				Relocations: relocations,
			})
	}

	return result, nil
}

func parseRelocationSection[T elf.RelocationEntry](
	file *File,
	section Section,
) (
	[]Relocation,
	error,
) {
	table, err := elf.ParseRelocationSection[T](
		file.raw,
		file.sectionHeader(section))
	if err != nil {
		return nil, err
	}

	// See elf spec. Figure 1-12. sh_link and sh_info Interpretation.
	var symbols []Symbol
	if section.Link != elf.SectionIndexUndefined {
		if int(section.Link) >= len(file.Sections) {
			return nil, fmt.Errorf(
				"%w. symbol table index out of bound (%d >= %d)",
				elf.ErrUnresolvableLink,
				section.Link,
				len(file.Sections))
		}

		symbols, err = file.SectionSymbols(file.Sections[section.Link])
		if err != nil {
			return nil, err
		}
	}

	return decodeRelocations(file.Machine, table, symbols)
}

func decodeRelocations[T elf.RelocationEntry](
	machine Machine,
	table *elf.RelocationTable[T],
	symbols []Symbol,
) (
	[]Relocation,
	error,
) {
	result := make([]Relocation, 0, table.Len())
	for idx, entry := range table.All() {
		relocation := Relocation{
			Type:        NewRelocationType(machine, entry.Type()),
			SymbolIndex: entry.SymbolIndex(),
		}

		switch value := any(entry).(type) {
		case elf.Rel:
			relocation.Offset = value.Offset
		case elf.Rela:
			relocation.Offset = value.Offset
			relocation.HasAddend = true
			relocation.Addend = value.Addend
		default:
			panic("should never happen")
		}

		if relocation.SymbolIndex != 0 {
			if uint64(relocation.SymbolIndex) >= uint64(len(symbols)) {
				return nil, fmt.Errorf(
					"%w. relocation %d's symbol index (%d) >= symbol count (%d)",
					elf.ErrIndexOutOfRange,
					idx,
					relocation.SymbolIndex,
					len(symbols))
			}

			symbol := symbols[relocation.SymbolIndex]
			relocation.Symbol = &symbol
		}

		result = append(result, relocation)
	}

	return result, nil
}

// DynamicEntries decodes the SHT_DYNAMIC section.  String values are
// resolved against the string table named by the section's sh_link.
func (file *File) DynamicEntries() ([]DynamicEntry, error) {
	section, ok := file.FindSection(SectionDynamic)
	if !ok {
		return nil, fmt.Errorf("%w. no dynamic section", elf.ErrSectionNotFound)
	}

	header := file.sectionHeader(section)
	table, err := elf.ParseDynamicSection(file.raw.Content(), header)
	if err != nil {
		return nil, err
	}

	var strings *elf.StringTable
	if section.Link != elf.SectionIndexUndefined {
		linked, ok := file.raw.SectionHeaderByIndex(int(section.Link))
		if !ok {
			return nil, fmt.Errorf(
				"%w. string table index out of bound (%d)",
				elf.ErrUnresolvableLink,
				section.Link)
		}

		strings, err = elf.NewStringTable(file.raw.Content(), linked)
		if err != nil {
			return nil, fmt.Errorf(
				"%w. string table index (%d): %w",
				elf.ErrUnresolvableLink,
				section.Link,
				err)
		}
	}

	entries := make([]DynamicEntry, 0, table.Len())
	for idx, raw := range table.All() {
		entry := DynamicEntry{
			Tag:   DynamicTag(raw.Tag),
			Value: raw.Value,
		}

		if entry.Tag.HasStringValue() {
			if strings == nil {
				return nil, fmt.Errorf(
					"%w. dynamic entry %d (%s) has no string table",
					elf.ErrUnresolvableLink,
					idx,
					entry.Tag)
			}

			if raw.Value > uint64(^uint32(0)) {
				return nil, fmt.Errorf(
					"%w. dynamic entry %d's string offset (%#x)",
					elf.ErrOutOfBounds,
					idx,
					raw.Value)
			}

			entry.StringValue, err = strings.Get(uint32(raw.Value))
			if err != nil {
				return nil, fmt.Errorf(
					"failed to resolve dynamic entry %d (%s): %w",
					idx,
					entry.Tag,
					err)
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// NeededLibraries returns the DT_NEEDED library names, in table order.
func (file *File) NeededLibraries() ([]string, error) {
	entries, err := file.DynamicEntries()
	if err != nil {
		return nil, err
	}

	return lo.FilterMap(entries, func(entry DynamicEntry, _ int) (string, bool) {
		return entry.StringValue, entry.Tag == DynamicNeeded
	}), nil
}

type SegmentMapping struct {
	Segment  Segment
	Sections []string
}

// SectionToSegmentMapping lists, for each segment, the allocated sections
// whose address falls within the segment's memory image.
func (file *File) SectionToSegmentMapping() []SegmentMapping {
	allocated := lo.Filter(file.Sections, func(section Section, _ int) bool {
		return section.Flags.Has(SectionAlloc)
	})

	return lo.Map(file.Segments, func(segment Segment, _ int) SegmentMapping {
		contained := lo.Filter(allocated, func(section Section, _ int) bool {
			return segment.ContainsAddress(section.Address)
		})

		return SegmentMapping{
			Segment: segment,
			Sections: lo.Map(contained, func(section Section, _ int) string {
				return section.Name
			}),
		}
	})
}

// Strings dumps every string in the named string table section.
func (file *File) Strings(sectionName string) ([]string, error) {
	section, ok := file.SectionByName(sectionName)
	if !ok {
		return nil, fmt.Errorf(
			"%w. no %s section",
			elf.ErrSectionNotFound,
			sectionName)
	}

	table, err := elf.NewStringTable(
		file.raw.Content(),
		file.sectionHeader(section))
	if err != nil {
		return nil, err
	}

	return table.All(), nil
}

// CheckSegmentSizes validates every segment's sizes.
func (file *File) CheckSegmentSizes() error {
	for _, segment := range file.Segments {
		err := segment.CheckSizes()
		if err != nil {
			return err
		}
	}

	return nil
}

// sharedPltEntries returns the number of trailing DT_RELA entries which are
// also covered by DT_JMPREL.  Some linkers include the PLT relocations in
// DT_RELASZ; the shared entries are decoded once, as PLT relocations.
func sharedPltEntries(dynamic *elf.DynamicTable) uint64 {
	values, err := dynamic.RequireEntries(
		elf.DynamicTagRela,
		elf.DynamicTagRelaSize,
		elf.DynamicTagRelaEntrySize,
		elf.DynamicTagJumpRelocations,
		elf.DynamicTagPLTRelocationsSize,
		elf.DynamicTagPLTRelocationType)
	if err != nil {
		return 0
	}

	relaAddress := values[0]
	relaSize := values[1]
	relaEntrySize := values[2]
	pltAddress := values[3]
	pltSize := values[4]

	if values[5] != elf.DynamicTagRela ||
		relaEntrySize != elf.Elf64RelaEntrySize ||
		pltAddress < relaAddress ||
		pltSize > relaSize ||
		relaAddress+relaSize != pltAddress+pltSize {
		return 0
	}

	return pltSize / relaEntrySize
}

// LoadedRelocations decodes the relocations of a loaded image via the
// dynamic segment: the DT_RELA, DT_REL and DT_JMPREL tables, in that order.
// DT_RELA entries shared with DT_JMPREL are only listed once, with the PLT
// relocations.  Tables whose address tag is absent are skipped; a present address tag
// with a missing size / entry size is an error.  Symbols are resolved
// against the file's .dynsym section.
func (file *File) LoadedRelocations(image elf.Image) ([]Relocation, error) {
	segment, ok := file.raw.FindProgramHeader(elf.ProgramTypeDynamic)
	if !ok {
		return nil, fmt.Errorf("%w. no dynamic segment", elf.ErrSectionNotFound)
	}

	dynamic, err := elf.ParseDynamicSegment(image, segment)
	if err != nil {
		return nil, err
	}

	symbols := []Symbol{}
	section, ok := file.FindSection(SectionDynamicSymbolTable)
	if ok {
		symbols, err = file.SectionSymbols(section)
		if err != nil {
			return nil, err
		}
	}

	result := []Relocation{}

	if dynamic.HasRelocations() {
		table, err := elf.ParseRelocationsFromDynamic[elf.Rela](image, dynamic)
		if err != nil {
			return nil, err
		}

		relocations, err := decodeRelocations(file.Machine, table, symbols)
		if err != nil {
			return nil, err
		}

		shared := sharedPltEntries(dynamic)
		if shared > uint64(len(relocations)) {
			panic("should never happen")
		}
		relocations = relocations[:uint64(len(relocations))-shared]

		result = append(result, relocations...)
	}

	_, ok = dynamic.FindEntry(elf.DynamicTagRel)
	if ok {
		table, err := elf.ParseRelocationsFromDynamic[elf.Rel](image, dynamic)
		if err != nil {
			return nil, err
		}

		relocations, err := decodeRelocations(file.Machine, table, symbols)
		if err != nil {
			return nil, err
		}
		result = append(result, relocations...)
	}

	_, ok = dynamic.FindEntry(elf.DynamicTagJumpRelocations)
	if ok {
		table, err := elf.ParsePltRelocationsFromDynamic(image, dynamic)
		if err != nil {
			return nil, err
		}

		relocations, err := decodeRelocations(file.Machine, table, symbols)
		if err != nil {
			return nil, err
		}
		result = append(result, relocations...)
	}

	return result, nil
}
