package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Resources:
// https://refspecs.linuxfoundation.org/

// Headers is the raw view of an elf64 file's headers: the file header, the
// program header table, the section header table and the section name
// string table.  All tables borrow the parsed buffer.
type Headers struct {
	FileHeader

	ProgramHeaders Table[ProgramHeader]
	SectionHeaders Table[SectionHeader]

	// nil when e_shstrndx is SHN_UNDEF
	SectionNames *StringTable

	content        []byte
	sectionsByName map[string]int
}

type parser struct {
	content []byte

	Headers
}

func Parse(reader io.Reader) (*Headers, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read elf file: %w", err)
	}

	return ParseBytes(content)
}

// ParseBytes parses the headers of content without copying it.  content
// must not be modified while the returned headers (or any table derived
// from them) are in use.
func ParseBytes(content []byte) (*Headers, error) {
	p := parser{
		content: content,
	}

	err := p.parse()
	if err != nil {
		return nil, err
	}

	return &p.Headers, nil
}

func (p *parser) parse() error {
	p.Headers.content = p.content

	err := p.parseIdentifier()
	if err != nil {
		return err
	}

	err = p.parseHeader()
	if err != nil {
		return err
	}

	err = p.parseProgramHeaders()
	if err != nil {
		return err
	}

	err = p.parseSectionHeaders()
	if err != nil {
		return err
	}

	return p.bindSectionNames()
}

func (p *parser) parseIdentifier() error {
	if len(p.content) < Elf64HeaderSize {
		return fmt.Errorf(
			"%w. %d < %d bytes",
			ErrTooShort,
			len(p.content),
			Elf64HeaderSize)
	}

	if !bytes.Equal(p.content[:len(IdentifierMagic)], IdentifierMagic) {
		return fmt.Errorf(
			"%w. % x",
			ErrInvalidMagic,
			p.content[:len(IdentifierMagic)])
	}

	// NOTE: the identifier has no endian-ness.  Class and data encoding must
	// be checked before the rest of the header is decoded.
	class := p.content[4]
	if class != Class64 {
		return fmt.Errorf("%w. unsupported class (%d)", ErrInvalidClass, class)
	}

	encoding := p.content[5]
	if encoding != DataEncodingLittleEndian {
		return fmt.Errorf(
			"%w. unsupported data encoding (%d)",
			ErrInvalidEndianness,
			encoding)
	}

	return nil
}

func (p *parser) parseHeader() error {
	n, err := binary.Decode(p.content, binary.LittleEndian, &p.FileHeader)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	if n != Elf64HeaderSize {
		panic("should never happen")
	}

	return nil
}

func (p *parser) parseProgramHeaders() error {
	table, err := NewTable[ProgramHeader](
		p.content,
		p.ProgramHeaderOffset,
		uint64(p.ProgramHeaderEntrySize),
		uint64(p.NumProgramHeaderEntries))
	if err != nil {
		return fmt.Errorf("failed to parse program header table: %w", err)
	}

	p.ProgramHeaders = table
	return nil
}

func (p *parser) parseSectionHeaders() error {
	table, err := NewTable[SectionHeader](
		p.content,
		p.SectionHeaderOffset,
		uint64(p.SectionHeaderEntrySize),
		uint64(p.NumSectionHeaderEntries))
	if err != nil {
		return fmt.Errorf("failed to parse section header table: %w", err)
	}

	p.SectionHeaders = table
	return nil
}

func (p *parser) bindSectionNames() error {
	p.sectionsByName = map[string]int{}

	if p.SectionStringTableIndex == SectionIndexUndefined {
		return nil
	}

	header, ok := p.SectionHeaderByIndex(int(p.SectionStringTableIndex))
	if !ok {
		return fmt.Errorf(
			"%w. section name table index out of bound (%d >= %d)",
			ErrUnresolvableLink,
			p.SectionStringTableIndex,
			p.SectionHeaders.Len())
	}

	names, err := NewStringTable(p.content, header)
	if err != nil {
		return fmt.Errorf("failed to parse section name table: %w", err)
	}
	p.SectionNames = names

	for idx, header := range p.SectionHeaders.All() {
		if idx == SectionIndexUndefined {
			continue
		}

		name, err := names.Get(header.NameIndex)
		if err != nil {
			return fmt.Errorf("failed to resolve section %d's name: %w", idx, err)
		}

		_, ok := p.sectionsByName[name]
		if !ok {
			p.sectionsByName[name] = idx
		}
	}

	return nil
}

// Content returns the buffer the headers were parsed from.
func (headers *Headers) Content() []byte {
	return headers.content
}

func (headers *Headers) SectionHeaderByIndex(index int) (SectionHeader, bool) {
	header, err := headers.SectionHeaders.Get(index)
	if err != nil {
		return SectionHeader{}, false
	}

	return header, true
}

// FindSectionHeader returns the first section header of the given type.
func (headers *Headers) FindSectionHeader(
	sectionType uint32,
) (
	SectionHeader,
	bool,
) {
	for _, header := range headers.SectionHeaders.All() {
		if header.Type == sectionType {
			return header, true
		}
	}

	return SectionHeader{}, false
}

func (headers *Headers) SectionHeaderByName(name string) (SectionHeader, bool) {
	idx, ok := headers.sectionsByName[name]
	if !ok {
		return SectionHeader{}, false
	}

	return headers.SectionHeaderByIndex(idx)
}

// SectionIndexByName returns the section header table index of the named
// section.
func (headers *Headers) SectionIndexByName(name string) (int, bool) {
	idx, ok := headers.sectionsByName[name]
	return idx, ok
}

func (headers *Headers) SectionName(header SectionHeader) (string, error) {
	if headers.SectionNames == nil {
		return "", fmt.Errorf("%w. no section name table", ErrSectionNotFound)
	}

	return headers.SectionNames.Get(header.NameIndex)
}

func (headers *Headers) SectionContent(header SectionHeader) ([]byte, error) {
	return header.Content(headers.content)
}

// FindProgramHeader returns the first program header of the given type.
func (headers *Headers) FindProgramHeader(
	programType uint32,
) (
	ProgramHeader,
	bool,
) {
	for _, header := range headers.ProgramHeaders.All() {
		if header.Type == programType {
			return header, true
		}
	}

	return ProgramHeader{}, false
}

// Content returns the section's bytes within the file.  SHT_NOBITS sections
// occupy no file space.
func (header SectionHeader) Content(content []byte) ([]byte, error) {
	if header.Type == SectionTypeNoSpace {
		return []byte{}, nil
	}

	span, err := Span(content, header.Offset, header.Size)
	if err != nil {
		return nil, fmt.Errorf("out of bound section: %w", err)
	}

	return span, nil
}
