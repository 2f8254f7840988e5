package elf_test

import (
	"errors"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/elftest"
)

type TableSuite struct{}

func TestTable(t *testing.T) {
	suite.RunTests(t, &TableSuite{})
}

func (TableSuite) TestSpan(t *testing.T) {
	content := []byte{0, 1, 2, 3, 4, 5, 6, 7}

	span, err := elf.Span(content, 2, 3)
	expect.Nil(t, err)
	expect.Equal(t, []byte{2, 3, 4}, span)
	expect.Equal(t, 3, cap(span))

	span, err = elf.Span(content, 8, 0)
	expect.Nil(t, err)
	expect.Equal(t, 0, len(span))

	_, err = elf.Span(content, 6, 3)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	_, err = elf.Span(content, 9, 0)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	_, err = elf.Span(content, 2, ^uint64(0))
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
	expect.Error(t, err, "overflows")
}

func (TableSuite) TestGet(t *testing.T) {
	symbols := []elf.Symbol{
		{},
		{NameIndex: 1, Info: 0x12, SectionIndex: 3, Value: 0x1000, Size: 8},
		{NameIndex: 5, Info: 0x11, Other: 2, Value: 0x2000, Size: 16},
	}

	// leading padding exercises the table offset
	content := append([]byte{0xff, 0xff}, elftest.Encode(symbols...)...)

	table, err := elf.NewTable[elf.Symbol](
		content,
		2,
		elf.Elf64SymbolEntrySize,
		3)
	expect.Nil(t, err)
	expect.Equal(t, 3, table.Len())
	expect.Equal(t, uint64(elf.Elf64SymbolEntrySize), table.EntrySize())

	for idx, expected := range symbols {
		symbol, err := table.Get(idx)
		expect.Nil(t, err)
		expect.Equal(t, expected, symbol)
	}

	_, err = table.Get(3)
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))

	_, err = table.Get(-1)
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))

	all := []elf.Symbol{}
	for idx, symbol := range table.All() {
		expect.Equal(t, len(all), idx)
		all = append(all, symbol)
	}
	expect.Equal(t, symbols, all)
}

func (TableSuite) TestLargerEntrySize(t *testing.T) {
	// each entry carries 8 trailing bytes which are ignored
	content := []byte{}
	for _, entry := range []elf.Dynamic{
		{Tag: elf.DynamicTagNeeded, Value: 1},
		{Tag: elf.DynamicTagNull},
	} {
		content = append(content, elftest.Encode(entry)...)
		content = append(content, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa)
	}

	table, err := elf.NewTable[elf.Dynamic](content, 0, 24, 2)
	expect.Nil(t, err)

	entry, err := table.Get(1)
	expect.Nil(t, err)
	expect.Equal(t, elf.Dynamic{Tag: elf.DynamicTagNull}, entry)
}

func (TableSuite) TestMalformed(t *testing.T) {
	content := make([]byte, 64)

	_, err := elf.NewTable[elf.Rela](content, 0, elf.Elf64RelEntrySize, 2)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))
	expect.Error(t, err, "smaller than record size")

	_, err = elf.NewTable[elf.Rela](content, 0, elf.Elf64RelaEntrySize, 3)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	_, err = elf.NewTable[elf.Rela](content, 0, 1<<40, 1<<40)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))
	expect.Error(t, err, "overflows")

	_, err = elf.NewTable[elf.Rela](content, 48, elf.Elf64RelaEntrySize, 1)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))

	table, err := elf.NewTable[elf.Rela](content, 1024, 0, 0)
	expect.Nil(t, err)
	expect.Equal(t, 0, table.Len())
}
