package elf_test

import (
	"errors"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/elftest"
)

type StringTableSuite struct{}

func TestStringTable(t *testing.T) {
	suite.RunTests(t, &StringTableSuite{})
}

func stringTableHeader(size int) elf.SectionHeader {
	return elf.SectionHeader{
		Type: elf.SectionTypeStringTable,
		Size: uint64(size),
	}
}

func (StringTableSuite) TestGet(t *testing.T) {
	content, offsets := elftest.StringTable("foo", "bar", "")

	table, err := elf.NewStringTable(content, stringTableHeader(len(content)))
	expect.Nil(t, err)
	expect.Equal(t, len(content), table.Size())

	value, err := table.Get(0)
	expect.Nil(t, err)
	expect.Equal(t, "", value)

	value, err = table.Get(offsets[0])
	expect.Nil(t, err)
	expect.Equal(t, "foo", value)

	value, err = table.Get(offsets[1])
	expect.Nil(t, err)
	expect.Equal(t, "bar", value)

	// suffix sharing
	value, err = table.Get(offsets[1] + 1)
	expect.Nil(t, err)
	expect.Equal(t, "ar", value)

	value, err = table.Get(offsets[2])
	expect.Nil(t, err)
	expect.Equal(t, "", value)

	raw, err := table.Bytes(offsets[0])
	expect.Nil(t, err)
	expect.Equal(t, []byte("foo"), raw)

	_, err = table.Get(uint32(len(content)))
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	expect.Equal(t, []string{"", "foo", "bar", ""}, table.All())
	expect.Equal(t, 3, table.NumEntries())
}

func (StringTableSuite) TestUnterminated(t *testing.T) {
	content := []byte("\x00foo\x00bar")

	table, err := elf.NewStringTable(content, stringTableHeader(len(content)))
	expect.Nil(t, err)

	value, err := table.Get(1)
	expect.Nil(t, err)
	expect.Equal(t, "foo", value)

	_, err = table.Get(5)
	expect.True(t, errors.Is(err, elf.ErrMalformedStringTable))

	expect.Equal(t, []string{"", "foo"}, table.All())
	expect.Equal(t, 1, table.NumEntries())
}

func (StringTableSuite) TestFirstByteNotNul(t *testing.T) {
	content := []byte("foo\x00")

	_, err := elf.NewStringTable(content, stringTableHeader(len(content)))
	expect.True(t, errors.Is(err, elf.ErrMalformedStringTable))
}

func (StringTableSuite) TestEmpty(t *testing.T) {
	table, err := elf.NewStringTable([]byte{}, stringTableHeader(0))
	expect.Nil(t, err)
	expect.Equal(t, 0, table.Size())
	expect.Equal(t, 0, table.NumEntries())
	expect.Equal(t, []string{}, table.All())

	_, err = table.Get(0)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
}

func (StringTableSuite) TestWrongSectionKind(t *testing.T) {
	content := []byte{0}
	header := stringTableHeader(1)
	header.Type = elf.SectionTypeSymbolTable

	_, err := elf.NewStringTable(content, header)
	expect.True(t, errors.Is(err, elf.ErrWrongSectionKind))
}

func (StringTableSuite) TestSectionNames(t *testing.T) {
	headers, err := elf.ParseBytes(elftest.NewFixture().Build())
	expect.Nil(t, err)

	names := headers.SectionNames.All()
	expect.Equal(t, "", names[0])
	expect.Equal(t, ".text", names[1])
	expect.Equal(t, elf.SectionStringTableName, names[len(names)-1])
}

type SymbolTableSuite struct{}

func TestSymbolTable(t *testing.T) {
	suite.RunTests(t, &SymbolTableSuite{})
}

func (SymbolTableSuite) TestSymbols(t *testing.T) {
	fixture := elftest.NewFixture()
	headers, err := elf.ParseBytes(fixture.Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.SymbolTableName)
	expect.True(t, ok)
	expect.Equal(t, uint64(96), header.Size)

	table, err := elf.NewSymbolTable(headers, header)
	expect.Nil(t, err)
	expect.Equal(t, 4, table.Len())
	expect.Equal(t, header, table.Header)

	null, err := table.ResolvedSymbol(0)
	expect.Nil(t, err)
	expect.Equal(t, elf.ResolvedSymbol{}, null)

	names := []string{}
	for symbol, err := range table.ResolvedSymbols() {
		expect.Nil(t, err)
		names = append(names, symbol.Name)
	}
	expect.Equal(t, append([]string{""}, fixture.Symbols...), names)

	start, err := table.ResolvedSymbol(2)
	expect.Nil(t, err)
	expect.Equal(t, "_start", start.Name)
	expect.Equal(t, fixture.Address(".text"), start.Value)
	expect.Equal(t, uint64(6), start.Size)
	expect.Equal(t, 2, start.Type())       // STT_FUNC
	expect.Equal(t, 1, start.Binding())    // STB_GLOBAL
	expect.Equal(t, 0, start.Visibility()) // STV_DEFAULT
	expect.Equal(t, uint16(fixture.SectionIndex(".text")), start.SectionIndex)

	file, err := table.Symbol(1)
	expect.Nil(t, err)
	expect.Equal(t, elf.SectionIndexAbsolute, file.SectionIndex)
	expect.Equal(t, 4, file.Type()) // STT_FILE
	expect.Equal(t, 0, file.Binding())

	_, err = table.Symbol(4)
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))
}

func (SymbolTableSuite) TestDynamicSymbols(t *testing.T) {
	fixture := elftest.NewFixture()
	headers, err := elf.ParseBytes(fixture.Build())
	expect.Nil(t, err)

	header, ok := headers.FindSectionHeader(elf.SectionTypeDynamicSymbolTable)
	expect.True(t, ok)

	table, err := elf.NewSymbolTable(headers, header)
	expect.Nil(t, err)
	expect.Equal(t, 3, table.Len())

	bar, err := table.ResolvedSymbol(2)
	expect.Nil(t, err)
	expect.Equal(t, "bar", bar.Name)
	expect.Equal(t, elf.SectionIndexUndefined, bar.SectionIndex)
}

func (SymbolTableSuite) TestDerivedCount(t *testing.T) {
	strtab, offsets := elftest.StringTable("a", "b")

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
			elf.Symbol{NameIndex: offsets[0]},
			elf.Symbol{NameIndex: offsets[1]}),
	})

	headers, err := elf.ParseBytes(builder.Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.SymbolTableName)
	expect.True(t, ok)
	expect.Equal(t, uint64(72), header.Size)

	table, err := elf.NewSymbolTable(headers, header)
	expect.Nil(t, err)
	expect.Equal(t, 3, table.Len())

	symbol, err := table.ResolvedSymbol(2)
	expect.Nil(t, err)
	expect.Equal(t, "b", symbol.Name)
}

func (SymbolTableSuite) TestBadEntrySize(t *testing.T) {
	headers, err := elf.ParseBytes(elftest.NewFixture().Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.SymbolTableName)
	expect.True(t, ok)

	header.EntrySize = 0
	_, err = elf.NewSymbolTable(headers, header)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))

	header.EntrySize = 20
	_, err = elf.NewSymbolTable(headers, header)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))

	// trailing bytes of each entry are ignored
	header.EntrySize = 48
	table, err := elf.NewSymbolTable(headers, header)
	expect.Nil(t, err)
	expect.Equal(t, 2, table.Len())
}

func (SymbolTableSuite) TestUnresolvableLink(t *testing.T) {
	headers, err := elf.ParseBytes(elftest.NewFixture().Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.SymbolTableName)
	expect.True(t, ok)

	header.Link = elf.SectionIndexUndefined
	_, err = elf.NewSymbolTable(headers, header)
	expect.True(t, errors.Is(err, elf.ErrUnresolvableLink))

	header.Link = uint32(headers.SectionHeaders.Len())
	_, err = elf.NewSymbolTable(headers, header)
	expect.True(t, errors.Is(err, elf.ErrUnresolvableLink))

	// linked to itself, which is not a string table
	idx, ok := headers.SectionIndexByName(elf.SymbolTableName)
	expect.True(t, ok)
	header.Link = uint32(idx)
	_, err = elf.NewSymbolTable(headers, header)
	expect.True(t, errors.Is(err, elf.ErrUnresolvableLink))
	expect.True(t, errors.Is(err, elf.ErrWrongSectionKind))
}

func (SymbolTableSuite) TestWrongSectionKind(t *testing.T) {
	headers, err := elf.ParseBytes(elftest.NewFixture().Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.StringTableName)
	expect.True(t, ok)

	_, err = elf.NewSymbolTable(headers, header)
	expect.True(t, errors.Is(err, elf.ErrWrongSectionKind))
}

func (SymbolTableSuite) TestUnresolvableName(t *testing.T) {
	strtab, _ := elftest.StringTable("a")

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
			elf.Symbol{NameIndex: 100},
			elf.Symbol{NameIndex: 1}),
	})

	headers, err := elf.ParseBytes(builder.Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.SymbolTableName)
	expect.True(t, ok)

	table, err := elf.NewSymbolTable(headers, header)
	expect.Nil(t, err)

	count := 0
	var lastErr error
	for _, err := range table.ResolvedSymbols() {
		count++
		lastErr = err
	}
	expect.Equal(t, 2, count)
	expect.True(t, errors.Is(lastErr, elf.ErrOutOfBounds))
}
