// Package elftest builds synthetic 64-bit little endian elf images for tests.
//
// Layout: file header | program headers | section contents (8-byte aligned,
// in declaration order) | .shstrtab | section headers.  Section i of
// Builder.Sections has section header table index i+1; index 0 is the null
// section.
package elftest

import (
	"encoding/binary"
	"fmt"

	"github.com/pattyshack/elfinfo/elf"
)

const (
	contentAlignment = 8

	MachineX86_64  = 62
	MachineAArch64 = 183

	FileTypeExecutable   = 2
	FileTypeSharedObject = 3
)

type Section struct {
	Name string

	// NameIndex, Offset and Size are filled in by the builder.  Address is
	// filled in for SHF_ALLOC sections when left zero.
	Header elf.SectionHeader

	Content []byte
}

type Segment struct {
	// When Sections is non-empty, ContentOffset / FileImageSize cover the
	// named sections and VirtualAddress / MemoryImageSize default to match.
	// When WholeFile is set, the segment covers the entire file.
	Header elf.ProgramHeader

	Sections  []string
	WholeFile bool
}

type Builder struct {
	FileType uint16
	Machine  uint16
	Entry    uint64

	// Address at which file offset 0 is mapped.
	VirtualBase uint64

	Sections []Section
	Segments []Segment

	// Applied to the encoded file header before it is written.
	ModifyHeader func(*elf.FileHeader)
}

func NewBuilder() *Builder {
	return &Builder{
		FileType:    FileTypeSharedObject,
		Machine:     MachineX86_64,
		VirtualBase: 0,
	}
}

func (builder *Builder) AddSection(section Section) *Builder {
	builder.Sections = append(builder.Sections, section)
	return builder
}

func (builder *Builder) AddSegment(segment Segment) *Builder {
	builder.Segments = append(builder.Segments, segment)
	return builder
}

// SectionIndex returns the section header table index of the named section.
func (builder *Builder) SectionIndex(name string) uint32 {
	for idx, section := range builder.Sections {
		if section.Name == name {
			return uint32(idx + 1)
		}
	}

	panic(fmt.Sprintf("section %s not found", name))
}

func align(value uint64) uint64 {
	return (value + contentAlignment - 1) / contentAlignment * contentAlignment
}

type layout struct {
	sectionOffsets   []uint64
	shstrtabOffset   uint64
	shstrtab         []byte
	nameIndices      []uint32
	shstrtabNameIdx  uint32
	sectionHeaderOff uint64
	fileSize         uint64
}

func (builder *Builder) layout() layout {
	result := layout{
		shstrtab: []byte{0},
	}

	offset := uint64(elf.Elf64HeaderSize) +
		uint64(len(builder.Segments))*elf.Elf64ProgramHeaderEntrySize

	for _, section := range builder.Sections {
		offset = align(offset)
		result.sectionOffsets = append(result.sectionOffsets, offset)
		offset += uint64(len(section.Content))

		result.nameIndices = append(
			result.nameIndices,
			uint32(len(result.shstrtab)))
		result.shstrtab = append(result.shstrtab, section.Name...)
		result.shstrtab = append(result.shstrtab, 0)
	}

	result.shstrtabNameIdx = uint32(len(result.shstrtab))
	result.shstrtab = append(result.shstrtab, elf.SectionStringTableName...)
	result.shstrtab = append(result.shstrtab, 0)

	result.shstrtabOffset = align(offset)
	offset = result.shstrtabOffset + uint64(len(result.shstrtab))

	result.sectionHeaderOff = align(offset)
	result.fileSize = result.sectionHeaderOff +
		uint64(len(builder.Sections)+2)*elf.Elf64SectionHeaderEntrySize

	return result
}

// Offset returns the file offset of the named section's content.  The
// layout only depends on section content sizes, so the offset is stable as
// long as the sizes don't change.
func (builder *Builder) Offset(name string) uint64 {
	return builder.layout().sectionOffsets[builder.SectionIndex(name)-1]
}

// Address returns the virtual address of the named section's content.
func (builder *Builder) Address(name string) uint64 {
	return builder.VirtualBase + builder.Offset(name)
}

func (builder *Builder) sectionHeaders(layout layout) []elf.SectionHeader {
	headers := []elf.SectionHeader{{}}
	for idx, section := range builder.Sections {
		header := section.Header
		header.NameIndex = layout.nameIndices[idx]
		header.Offset = layout.sectionOffsets[idx]
		header.Size = uint64(len(section.Content))
		if header.Address == 0 && header.Flags&sectionFlagAlloc != 0 {
			header.Address = builder.VirtualBase + header.Offset
		}
		headers = append(headers, header)
	}

	headers = append(
		headers,
		elf.SectionHeader{
			NameIndex:        layout.shstrtabNameIdx,
			Type:             elf.SectionTypeStringTable,
			Offset:           layout.shstrtabOffset,
			Size:             uint64(len(layout.shstrtab)),
			AddressAlignment: 1,
		})

	return headers
}

const sectionFlagAlloc = 0x2 // SHF_ALLOC

func (builder *Builder) programHeaders(layout layout) []elf.ProgramHeader {
	headers := []elf.ProgramHeader{}
	for _, segment := range builder.Segments {
		header := segment.Header

		if segment.WholeFile {
			header.ContentOffset = 0
			header.FileImageSize = layout.fileSize
		} else if len(segment.Sections) > 0 {
			start := ^uint64(0)
			end := uint64(0)
			for _, name := range segment.Sections {
				idx := builder.SectionIndex(name) - 1
				offset := layout.sectionOffsets[idx]
				start = min(start, offset)
				end = max(end, offset+uint64(len(builder.Sections[idx].Content)))
			}

			header.ContentOffset = start
			header.FileImageSize = end - start
		}

		if segment.WholeFile || len(segment.Sections) > 0 {
			if header.VirtualAddress == 0 {
				header.VirtualAddress = builder.VirtualBase + header.ContentOffset
				header.PhysicalAddress = header.VirtualAddress
			}
			if header.MemoryImageSize == 0 {
				header.MemoryImageSize = header.FileImageSize
			}
		}

		headers = append(headers, header)
	}

	return headers
}

// Build encodes the elf image.
func (builder *Builder) Build() []byte {
	layout := builder.layout()
	sectionHeaders := builder.sectionHeaders(layout)
	programHeaders := builder.programHeaders(layout)

	header := elf.FileHeader{
		Identifier: elf.Identifier{
			Magic:             [4]byte{0x7f, 'E', 'L', 'F'},
			Class:             elf.Class64,
			DataEncoding:      elf.DataEncodingLittleEndian,
			IdentifierVersion: 1,
		},
		FileType:                builder.FileType,
		MachineArchitecture:     builder.Machine,
		FormatVersion:           1,
		EntryPointAddress:       builder.Entry,
		SectionHeaderOffset:     layout.sectionHeaderOff,
		ElfHeaderSize:           elf.Elf64HeaderSize,
		SectionHeaderEntrySize:  elf.Elf64SectionHeaderEntrySize,
		NumSectionHeaderEntries: uint16(len(sectionHeaders)),
		SectionStringTableIndex: uint16(len(sectionHeaders) - 1),
	}

	if len(programHeaders) > 0 {
		header.ProgramHeaderOffset = elf.Elf64HeaderSize
		header.ProgramHeaderEntrySize = elf.Elf64ProgramHeaderEntrySize
		header.NumProgramHeaderEntries = uint16(len(programHeaders))
	}

	if builder.ModifyHeader != nil {
		builder.ModifyHeader(&header)
	}

	content := make([]byte, layout.fileSize)
	write(content, 0, header)
	write(content, elf.Elf64HeaderSize, programHeaders)

	for idx, section := range builder.Sections {
		copy(content[layout.sectionOffsets[idx]:], section.Content)
	}
	copy(content[layout.shstrtabOffset:], layout.shstrtab)

	write(content, layout.sectionHeaderOff, sectionHeaders)

	return content
}

func write(content []byte, offset uint64, data any) {
	_, err := binary.Encode(content[offset:], binary.LittleEndian, data)
	if err != nil {
		panic(err)
	}
}

// Encode encodes records back to back, e.g. a symbol or relocation table's
// section content.
func Encode[T any](records ...T) []byte {
	result := []byte{}
	for _, record := range records {
		var err error
		result, err = binary.Append(result, binary.LittleEndian, record)
		if err != nil {
			panic(err)
		}
	}

	return result
}

// StringTable returns a string table's content along with each string's
// offset.
func StringTable(values ...string) ([]byte, []uint32) {
	content := []byte{0}
	offsets := []uint32{}
	for _, value := range values {
		offsets = append(offsets, uint32(len(content)))
		content = append(content, value...)
		content = append(content, 0)
	}

	return content, offsets
}
