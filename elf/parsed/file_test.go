package parsed

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/elftest"
)

var relocationTypeComparer = cmp.AllowUnexported(RelocationType{})

type FileSuite struct{}

func TestFile(t *testing.T) {
	suite.RunTests(t, &FileSuite{})
}

func parseFixture(t *testing.T) (*elftest.Fixture, *File) {
	fixture := elftest.NewFixture()

	file, err := Parse(fixture.Build())
	expect.Nil(t, err)

	return fixture, file
}

func (FileSuite) TestHeader(t *testing.T) {
	fixture, file := parseFixture(t)

	expected := Header{
		Class:        Class64,
		DataEncoding: LittleEndian,
		Type:         ObjectTypeSharedObject,
		Machine:      MachineX86_64,
		EntryPoint:   fixture.Address(".text"),
	}

	expect.Equal(t, "", cmp.Diff(expected, file.Header))
}

func (FileSuite) TestUnknownObjectType(t *testing.T) {
	fixture := elftest.NewFixture()
	fixture.ModifyHeader = func(header *elf.FileHeader) {
		header.FileType = 0x10
	}

	_, err := Parse(fixture.Build())
	expect.True(t, errors.Is(err, ErrUnknownObjectType))
}

func (FileSuite) TestSections(t *testing.T) {
	fixture, file := parseFixture(t)

	names := []string{}
	for idx, section := range file.Sections {
		expect.Equal(t, idx, section.Index)
		names = append(names, section.Name)
	}

	expect.Equal(
		t,
		[]string{
			"",
			".text",
			".dynstr",
			".dynsym",
			".rela.dyn",
			".dynamic",
			".strtab",
			".symtab",
			".bss",
			".shstrtab",
		},
		names)

	text, ok := file.SectionByName(".text")
	expect.True(t, ok)
	expect.Equal(t, SectionProgramDefinedInfo, text.Type)
	expect.Equal(t, "AX", text.Flags.String())
	expect.Equal(t, fixture.Address(".text"), text.Address)

	content, err := file.SectionContent(text)
	expect.Nil(t, err)
	expect.Equal(t, fixture.Text, content)

	dynsym, ok := file.FindSection(SectionDynamicSymbolTable)
	expect.True(t, ok)
	expect.Equal(t, ".dynsym", dynsym.Name)

	_, ok = file.SectionByName(".got")
	expect.False(t, ok)
}

func (FileSuite) TestSegments(t *testing.T) {
	fixture, file := parseFixture(t)

	expect.Equal(t, 2, len(file.Segments))

	load := file.Segments[0]
	expect.Equal(t, SegmentLoad, load.Type)
	expect.Equal(t, "RWE", load.Flags.String())
	expect.Equal(t, elftest.FixtureVirtualBase, load.VirtualAddress)
	expect.Nil(t, load.CheckSizes())

	dynamic := file.Segments[1]
	expect.Equal(t, SegmentDynamic, dynamic.Type)
	expect.Equal(t, fixture.Address(".dynamic"), dynamic.VirtualAddress)

	expect.Nil(t, file.CheckSegmentSizes())
}

func (FileSuite) TestCheckSizes(t *testing.T) {
	segment := Segment{
		Type:       SegmentLoad,
		FileSize:   0x20,
		MemorySize: 0x10,
	}
	err := segment.CheckSizes()
	expect.True(t, errors.Is(err, ErrInvalidSegmentSize))

	// only loadable segments are checked
	segment.Type = SegmentNote
	expect.Nil(t, segment.CheckSizes())
}

func (FileSuite) TestSymbols(t *testing.T) {
	fixture, file := parseFixture(t)

	symbols, err := file.Symbols(SectionSymbolTable)
	expect.Nil(t, err)

	textIndex := uint16(fixture.SectionIndex(".text"))
	textAddress := fixture.Address(".text")

	expected := []Symbol{
		{},
		{
			Index:        1,
			Name:         "main.c",
			Type:         SymbolFile,
			Binding:      BindingLocal,
			SectionIndex: elf.SectionIndexAbsolute,
		},
		{
			Index:        2,
			Name:         "_start",
			Type:         SymbolFunction,
			Binding:      BindingGlobal,
			SectionIndex: textIndex,
			Value:        textAddress,
			Size:         6,
		},
		{
			Index:        3,
			Name:         "_ZN3foo3barEv",
			Type:         SymbolFunction,
			Binding:      BindingGlobal,
			SectionIndex: textIndex,
			Value:        textAddress + 6,
			Size:         2,
		},
	}

	expect.Equal(t, "", cmp.Diff(expected, symbols))

	expect.Equal(t, "foo::bar()", symbols[3].DemangledName())
	expect.Equal(t, "_start", symbols[2].DemangledName())

	symbol, ok := SymbolAt(symbols, textAddress+7)
	expect.True(t, ok)
	expect.Equal(t, 3, symbol.Index)

	_, ok = SymbolAt(symbols, textAddress+8)
	expect.False(t, ok)

	matches := SymbolsByName(symbols, "_start")
	expect.Equal(t, 1, len(matches))
	expect.Equal(t, 2, matches[0].Index)
}

func (FileSuite) TestDynamicSymbols(t *testing.T) {
	_, file := parseFixture(t)

	symbols, err := file.Symbols(SectionDynamicSymbolTable)
	expect.Nil(t, err)
	expect.Equal(t, 3, len(symbols))
	expect.Equal(t, "foo", symbols[1].Name)
	expect.Equal(t, "bar", symbols[2].Name)
	expect.Equal(t, SymbolObject, symbols[2].Type)
	expect.True(t, symbols[2].IsUndefined())
	expect.False(t, symbols[1].IsUndefined())
}

func (FileSuite) TestMissingSymbolTable(t *testing.T) {
	file, err := Parse(elftest.NewBuilder().Build())
	expect.Nil(t, err)

	_, err = file.Symbols(SectionSymbolTable)
	expect.True(t, errors.Is(err, elf.ErrSectionNotFound))
}

func (FileSuite) TestUnknownSymbolType(t *testing.T) {
	strtab, offsets := elftest.StringTable("weird")

	builder := elftest.NewBuilder()
	builder.AddSection(elftest.Section{
		Name:    elf.StringTableName,
		Header:  elf.SectionHeader{Type: elf.SectionTypeStringTable},
		Content: strtab,
	})
	builder.AddSection(elftest.Section{
		Name: elf.SymbolTableName,
		Header: elf.SectionHeader{
			Type:      elf.SectionTypeSymbolTable,
			Link:      1,
			EntrySize: elf.Elf64SymbolEntrySize,
		},
		Content: elftest.Encode(
			elf.Symbol{},
			elf.Symbol{NameIndex: offsets[0], Info: 8}),
	})

	file, err := Parse(builder.Build())
	expect.Nil(t, err)

	_, err = file.Symbols(SectionSymbolTable)
	expect.True(t, errors.Is(err, ErrUnknownSymbolType))
}

func expectedRelocations(
	t *testing.T,
	fixture *elftest.Fixture,
	file *File,
) []Relocation {
	dynamicSymbols, err := file.Symbols(SectionDynamicSymbolTable)
	expect.Nil(t, err)

	return []Relocation{
		{
			Offset:    fixture.Address(".dynamic") - 8,
			Type:      NewRelocationType(MachineX86_64, 8),
			HasAddend: true,
			Addend:    fixture.RelativeAddend,
		},
		{
			Offset:      fixture.Address(".dynamic") - 16,
			Type:        NewRelocationType(MachineX86_64, 6),
			SymbolIndex: 2,
			HasAddend:   true,
			Symbol:      &dynamicSymbols[2],
		},
	}
}

func (FileSuite) TestRelocationSections(t *testing.T) {
	fixture, file := parseFixture(t)

	sections, err := file.RelocationSections()
	expect.Nil(t, err)
	expect.Equal(t, 1, len(sections))
	expect.Equal(t, ".rela.dyn", sections[0].Name)

	expect.Equal(t, "", cmp.Diff(
		expectedRelocations(t, fixture, file),
		sections[0].Relocations,
		relocationTypeComparer))

	expect.Equal(t, "", sections[0].Relocations[0].SymbolName())
	expect.Equal(t, "bar", sections[0].Relocations[1].SymbolName())
	expect.Equal(
		t,
		"R_X86_64_RELATIVE",
		sections[0].Relocations[0].Type.String())
}

func (FileSuite) TestRelSection(t *testing.T) {
	dynstr, offsets := elftest.StringTable("puts")

	builder := elftest.NewBuilder()
	builder.Machine = elftest.MachineAArch64
	builder.AddSection(elftest.Section{
		Name:    ".dynstr",
		Header:  elf.SectionHeader{Type: elf.SectionTypeStringTable},
		Content: dynstr,
	})
	builder.AddSection(elftest.Section{
		Name: ".dynsym",
		Header: elf.SectionHeader{
			Type:      elf.SectionTypeDynamicSymbolTable,
			Link:      1,
			EntrySize: elf.Elf64SymbolEntrySize,
		},
		Content: elftest.Encode(
			elf.Symbol{},
			elf.Symbol{NameIndex: offsets[0], Info: 1<<4 | 2}),
	})
	builder.AddSection(elftest.Section{
		Name: ".rel.plt",
		Header: elf.SectionHeader{
			Type:      elf.SectionTypeRelocationNoAddends,
			Link:      2,
			EntrySize: elf.Elf64RelEntrySize,
		},
		Content: elftest.Encode(
			elf.Rel{
				Offset:         0x2000,
				RelocationInfo: elf.NewRelocationInfo(1, 0x402),
			}),
	})

	file, err := Parse(builder.Build())
	expect.Nil(t, err)

	sections, err := file.RelocationSections()
	expect.Nil(t, err)
	expect.Equal(t, 1, len(sections))

	relocation := sections[0].Relocations[0]
	expect.Equal(t, uint64(0x2000), relocation.Offset)
	expect.False(t, relocation.HasAddend)
	expect.Equal(t, "R_AARCH64_JUMP_SLOT", relocation.Type.String())
	expect.Equal(t, "puts", relocation.SymbolName())
}

func (FileSuite) TestRelocationSymbolOutOfRange(t *testing.T) {
	builder := elftest.NewBuilder()
	builder.AddSection(elftest.Section{
		Name:    ".dynstr",
		Header:  elf.SectionHeader{Type: elf.SectionTypeStringTable},
		Content: []byte{0},
	})
	builder.AddSection(elftest.Section{
		Name: ".dynsym",
		Header: elf.SectionHeader{
			Type:      elf.SectionTypeDynamicSymbolTable,
			Link:      1,
			EntrySize: elf.Elf64SymbolEntrySize,
		},
		Content: elftest.Encode(elf.Symbol{}),
	})
	builder.AddSection(elftest.Section{
		Name: ".rela.dyn",
		Header: elf.SectionHeader{
			Type:      elf.SectionTypeRelocationWithAddends,
			Link:      2,
			EntrySize: elf.Elf64RelaEntrySize,
		},
		Content: elftest.Encode(
			elf.Rela{RelocationInfo: elf.NewRelocationInfo(5, 6)}),
	})

	file, err := Parse(builder.Build())
	expect.Nil(t, err)

	_, err = file.RelocationSections()
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))
}

func (FileSuite) TestDynamicEntries(t *testing.T) {
	fixture, file := parseFixture(t)

	entries, err := file.DynamicEntries()
	expect.Nil(t, err)
	expect.Equal(t, 9, len(entries))

	expect.Equal(t, DynamicNeeded, entries[0].Tag)
	expect.Equal(t, fixture.Needed, entries[0].StringValue)

	expect.Equal(t, DynamicRela, entries[5].Tag)
	expect.Equal(t, fixture.Address(".rela.dyn"), entries[5].Value)
	expect.Equal(t, "", entries[5].StringValue)

	expect.Equal(t, DynamicEntry{Tag: DynamicNull}, entries[8])

	libraries, err := file.NeededLibraries()
	expect.Nil(t, err)
	expect.Equal(t, []string{fixture.Needed}, libraries)
}

func (FileSuite) TestNoDynamicSection(t *testing.T) {
	file, err := Parse(elftest.NewBuilder().Build())
	expect.Nil(t, err)

	_, err = file.DynamicEntries()
	expect.True(t, errors.Is(err, elf.ErrSectionNotFound))

	_, err = file.NeededLibraries()
	expect.True(t, errors.Is(err, elf.ErrSectionNotFound))
}

func (FileSuite) TestSectionToSegmentMapping(t *testing.T) {
	_, file := parseFixture(t)

	mapping := file.SectionToSegmentMapping()
	expect.Equal(t, 2, len(mapping))

	expect.Equal(t, 0, mapping[0].Segment.Index)
	expect.Equal(
		t,
		[]string{".text", ".dynstr", ".dynsym", ".rela.dyn", ".dynamic", ".bss"},
		mapping[0].Sections)

	expect.Equal(t, SegmentDynamic, mapping[1].Segment.Type)
	expect.Equal(t, []string{".dynamic"}, mapping[1].Sections)
}

func (FileSuite) TestStrings(t *testing.T) {
	_, file := parseFixture(t)

	values, err := file.Strings(".dynstr")
	expect.Nil(t, err)
	expect.Equal(t, []string{"", "libc.so.6", "foo", "bar"}, values)

	_, err = file.Strings(".symtab")
	expect.True(t, errors.Is(err, elf.ErrWrongSectionKind))

	_, err = file.Strings(".comment")
	expect.True(t, errors.Is(err, elf.ErrSectionNotFound))
}

func (FileSuite) TestLoadedRelocations(t *testing.T) {
	fixture, file := parseFixture(t)

	image, err := elf.LoadSegments(file.Raw(), 0x7f1200000000)
	expect.Nil(t, err)

	relocations, err := file.LoadedRelocations(image)
	expect.Nil(t, err)

	expect.Equal(t, "", cmp.Diff(
		expectedRelocations(t, fixture, file),
		relocations,
		relocationTypeComparer))
}

func (FileSuite) TestLoadedRelocationsSharedPltRange(t *testing.T) {
	fixture := elftest.NewFixture()

	// DT_RELASZ covers both entries; DT_JMPREL covers the last one.
	relaAddress := fixture.Address(".rela.dyn")
	fixture.Sections[fixture.SectionIndex(".dynamic")-1].Content = elftest.Encode(
		elf.Dynamic{Tag: elf.DynamicTagStringTable, Value: fixture.Address(".dynstr")},
		elf.Dynamic{Tag: elf.DynamicTagSymbolTable, Value: fixture.Address(".dynsym")},
		elf.Dynamic{Tag: elf.DynamicTagRela, Value: relaAddress},
		elf.Dynamic{Tag: elf.DynamicTagRelaSize, Value: 2 * elf.Elf64RelaEntrySize},
		elf.Dynamic{Tag: elf.DynamicTagRelaEntrySize, Value: elf.Elf64RelaEntrySize},
		elf.Dynamic{
			Tag:   elf.DynamicTagJumpRelocations,
			Value: relaAddress + elf.Elf64RelaEntrySize,
		},
		elf.Dynamic{
			Tag:   elf.DynamicTagPLTRelocationsSize,
			Value: elf.Elf64RelaEntrySize,
		},
		elf.Dynamic{
			Tag:   elf.DynamicTagPLTRelocationType,
			Value: elf.DynamicTagRela,
		},
		elf.Dynamic{Tag: elf.DynamicTagNull})

	file, err := Parse(fixture.Build())
	expect.Nil(t, err)

	image, err := elf.LoadSegments(file.Raw(), 0x7f1200000000)
	expect.Nil(t, err)

	relocations, err := file.LoadedRelocations(image)
	expect.Nil(t, err)

	expect.Equal(t, "", cmp.Diff(
		expectedRelocations(t, fixture, file),
		relocations,
		relocationTypeComparer))
}

func (FileSuite) TestLoadedRelocationsDisjointPltRange(t *testing.T) {
	fixture := elftest.NewFixture()

	// DT_RELA covers the first entry; DT_JMPREL covers the second one.
	relaAddress := fixture.Address(".rela.dyn")
	fixture.Sections[fixture.SectionIndex(".dynamic")-1].Content = elftest.Encode(
		elf.Dynamic{Tag: elf.DynamicTagStringTable, Value: fixture.Address(".dynstr")},
		elf.Dynamic{Tag: elf.DynamicTagSymbolTable, Value: fixture.Address(".dynsym")},
		elf.Dynamic{Tag: elf.DynamicTagRela, Value: relaAddress},
		elf.Dynamic{Tag: elf.DynamicTagRelaSize, Value: elf.Elf64RelaEntrySize},
		elf.Dynamic{Tag: elf.DynamicTagRelaEntrySize, Value: elf.Elf64RelaEntrySize},
		elf.Dynamic{
			Tag:   elf.DynamicTagJumpRelocations,
			Value: relaAddress + elf.Elf64RelaEntrySize,
		},
		elf.Dynamic{
			Tag:   elf.DynamicTagPLTRelocationsSize,
			Value: elf.Elf64RelaEntrySize,
		},
		elf.Dynamic{
			Tag:   elf.DynamicTagPLTRelocationType,
			Value: elf.DynamicTagRela,
		},
		elf.Dynamic{Tag: elf.DynamicTagNull})

	file, err := Parse(fixture.Build())
	expect.Nil(t, err)

	image, err := elf.LoadSegments(file.Raw(), 0)
	expect.Nil(t, err)

	relocations, err := file.LoadedRelocations(image)
	expect.Nil(t, err)

	expect.Equal(t, "", cmp.Diff(
		expectedRelocations(t, fixture, file),
		relocations,
		relocationTypeComparer))
}

func (FileSuite) TestLoadedRelocationsWithoutDynamicSegment(t *testing.T) {
	file, err := Parse(elftest.NewBuilder().Build())
	expect.Nil(t, err)

	image, err := elf.LoadSegments(file.Raw(), 0)
	expect.Nil(t, err)

	_, err = file.LoadedRelocations(image)
	expect.True(t, errors.Is(err, elf.ErrSectionNotFound))
}
