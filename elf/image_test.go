package elf_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/elftest"
)

type ImageSuite struct{}

func TestImage(t *testing.T) {
	suite.RunTests(t, &ImageSuite{})
}

func (ImageSuite) TestLoadSegments(t *testing.T) {
	fixture := elftest.NewFixture()
	content := fixture.Build()

	headers, err := elf.ParseBytes(content)
	expect.Nil(t, err)

	loadBase := uint64(0x7f0000000000)
	image, err := elf.LoadSegments(headers, loadBase)
	expect.Nil(t, err)
	expect.Equal(t, loadBase, image.LoadBase)

	// link time addresses are rebased
	text, err := image.Bytes(fixture.Address(".text"), uint64(len(fixture.Text)))
	expect.Nil(t, err)
	expect.Equal(t, fixture.Text, text)

	// absolute addresses in the address space
	text, err = image.Memory.Bytes(
		loadBase+fixture.Address(".text"),
		uint64(len(fixture.Text)))
	expect.Nil(t, err)
	expect.Equal(t, fixture.Text, text)

	whole, err := image.Bytes(elftest.FixtureVirtualBase, uint64(len(content)))
	expect.Nil(t, err)
	expect.Equal(t, content, whole)

	_, err = image.Bytes(elftest.FixtureVirtualBase, uint64(len(content))+1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	_, err = image.Bytes(elftest.FixtureVirtualBase-1, 1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
}

func (ImageSuite) TestZeroFill(t *testing.T) {
	builder := elftest.NewBuilder()
	builder.VirtualBase = 0x10000
	builder.AddSection(elftest.Section{
		Name: ".data",
		Header: elf.SectionHeader{
			Type:  elf.SectionTypeProgramDefinedInfo,
			Flags: 0x2 | 0x1, // SHF_ALLOC | SHF_WRITE
		},
		Content: []byte{1, 2, 3, 4},
	})
	builder.AddSegment(elftest.Segment{
		Header: elf.ProgramHeader{
			Type:            elf.ProgramTypeLoadable,
			MemoryImageSize: 16,
		},
		Sections: []string{".data"},
	})

	headers, err := elf.ParseBytes(builder.Build())
	expect.Nil(t, err)

	image, err := elf.LoadSegments(headers, 0)
	expect.Nil(t, err)

	data, err := image.Bytes(builder.Address(".data"), 16)
	expect.Nil(t, err)
	expect.Equal(
		t,
		[]byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		data)
}

func (ImageSuite) TestFileSizeExceedsMemorySize(t *testing.T) {
	builder := elftest.NewBuilder()
	builder.AddSection(elftest.Section{
		Name:    ".data",
		Header:  elf.SectionHeader{Type: elf.SectionTypeProgramDefinedInfo},
		Content: []byte{1, 2, 3, 4},
	})
	builder.AddSegment(elftest.Segment{
		Header: elf.ProgramHeader{
			Type:            elf.ProgramTypeLoadable,
			VirtualAddress:  0x1000,
			MemoryImageSize: 2,
		},
		Sections: []string{".data"},
	})

	headers, err := elf.ParseBytes(builder.Build())
	expect.Nil(t, err)

	_, err = elf.LoadSegments(headers, 0)
	expect.True(t, errors.Is(err, elf.ErrMalformedTable))
}

func (ImageSuite) TestNoLoadableSegment(t *testing.T) {
	headers, err := elf.ParseBytes(elftest.NewBuilder().Build())
	expect.Nil(t, err)

	image, err := elf.LoadSegments(headers, 0x1000)
	expect.Nil(t, err)

	_, err = image.Bytes(0, 1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
}

func (ImageSuite) TestRebaseOverflow(t *testing.T) {
	image := elf.Image{
		Memory:   elf.NewReaderAddressSpace(bytes.NewReader(nil)),
		LoadBase: ^uint64(0) - 1,
	}

	_, err := image.Bytes(0x10, 1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
	expect.Error(t, err, "overflows")

	_, err = image.Bytes(0, elf.MaxImageReadSize+1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
	expect.Error(t, err, "exceeds limit")
}

func (ImageSuite) TestReaderAddressSpace(t *testing.T) {
	memory := []byte("0123456789")
	space := elf.NewReaderAddressSpace(bytes.NewReader(memory))

	data, err := space.Bytes(2, 3)
	expect.Nil(t, err)
	expect.Equal(t, []byte("234"), data)

	// copies are independent of the reader's buffer
	data[0] = 'x'
	expect.Equal(t, byte('2'), memory[2])

	_, err = space.Bytes(8, 3)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
	expect.Error(t, err, "short read")

	_, err = space.Bytes(100, 1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	_, err = space.Bytes(^uint64(0), 1)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
}

type DynamicSuite struct{}

func TestDynamic(t *testing.T) {
	suite.RunTests(t, &DynamicSuite{})
}

func (DynamicSuite) TestSection(t *testing.T) {
	fixture := elftest.NewFixture()
	headers, err := elf.ParseBytes(fixture.Build())
	expect.Nil(t, err)

	header, ok := headers.SectionHeaderByName(elf.DynamicName)
	expect.True(t, ok)

	table, err := elf.ParseDynamicSection(headers.Content(), header)
	expect.Nil(t, err)
	expect.Equal(t, 9, table.Len())
	expect.True(t, table.HasRelocations())

	entry, ok := table.FindEntry(elf.DynamicTagSymbolTable)
	expect.True(t, ok)
	expect.Equal(t, fixture.Address(".dynsym"), entry.Value)

	last, err := table.Get(8)
	expect.Nil(t, err)
	expect.Equal(t, elf.Dynamic{Tag: elf.DynamicTagNull}, last)

	_, ok = table.FindEntry(elf.DynamicTagSharedObjectName)
	expect.False(t, ok)

	values, err := table.RequireEntries(
		elf.DynamicTagStringTable,
		elf.DynamicTagStringTableSize)
	expect.Nil(t, err)
	expect.Equal(t, 2, len(values))
	expect.Equal(t, fixture.Address(".dynstr"), values[0])

	_, err = table.RequireEntries(
		elf.DynamicTagStringTable,
		elf.DynamicTagJumpRelocations)
	expect.True(t, errors.Is(err, elf.ErrMissingDynamicEntry))

	_, err = elf.ParseDynamicSection(headers.Content(), elf.SectionHeader{
		Type: elf.SectionTypeStringTable,
	})
	expect.True(t, errors.Is(err, elf.ErrWrongSectionKind))
}

func (DynamicSuite) TestEntriesAfterNull(t *testing.T) {
	// the table is bounded by its size, not by DT_NULL
	table := dynamicTable(
		t,
		elf.Dynamic{Tag: elf.DynamicTagNull},
		elf.Dynamic{Tag: elf.DynamicTagRela, Value: 0x10})

	expect.Equal(t, 2, table.Len())
	expect.True(t, table.HasRelocations())
}

func (DynamicSuite) TestSegment(t *testing.T) {
	fixture := elftest.NewFixture()
	headers, err := elf.ParseBytes(fixture.Build())
	expect.Nil(t, err)

	image, err := elf.LoadSegments(headers, 0x5000)
	expect.Nil(t, err)

	segment, ok := headers.FindProgramHeader(elf.ProgramTypeDynamic)
	expect.True(t, ok)

	// memsz padding past the last entry is dropped
	segment.MemoryImageSize += 8

	fromSegment, err := elf.ParseDynamicSegment(image, segment)
	expect.Nil(t, err)
	expect.Equal(t, 9, fromSegment.Len())

	header, ok := headers.SectionHeaderByName(elf.DynamicName)
	expect.True(t, ok)

	fromSection, err := elf.ParseDynamicSection(headers.Content(), header)
	expect.Nil(t, err)

	for idx, expected := range fromSection.All() {
		actual, err := fromSegment.Get(idx)
		expect.Nil(t, err)
		expect.Equal(t, expected, actual)
	}

	load, ok := headers.FindProgramHeader(elf.ProgramTypeLoadable)
	expect.True(t, ok)

	_, err = elf.ParseDynamicSegment(image, load)
	expect.True(t, errors.Is(err, elf.ErrWrongSegmentKind))
}
