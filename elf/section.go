package elf

import (
	"bytes"
	"fmt"
	"iter"
)

// StringTable is a borrowed view of a SHT_STRTAB section.  Byte 0 of a
// non-empty table is always NUL (the empty string).
type StringTable struct {
	content []byte
}

func NewStringTable(
	content []byte,
	header SectionHeader,
) (
	*StringTable,
	error,
) {
	if header.Type != SectionTypeStringTable {
		return nil, fmt.Errorf(
			"%w. section type (%d) is not a string table",
			ErrWrongSectionKind,
			header.Type)
	}

	table, err := header.Content(content)
	if err != nil {
		return nil, err
	}

	return newStringTable(table)
}

func newStringTable(table []byte) (*StringTable, error) {
	if len(table) > 0 && table[0] != 0 {
		return nil, fmt.Errorf(
			"%w. first byte (%#x) is not NUL",
			ErrMalformedStringTable,
			table[0])
	}

	return &StringTable{
		content: table,
	}, nil
}

func (table *StringTable) Size() int {
	return len(table.content)
}

// Bytes returns the NUL terminated run starting at offset, without the
// terminator.  The result borrows the table's buffer.
func (table *StringTable) Bytes(offset uint32) ([]byte, error) {
	if uint64(offset) >= uint64(len(table.content)) {
		return nil, fmt.Errorf(
			"%w. string offset (%d) >= table size (%d)",
			ErrOutOfBounds,
			offset,
			len(table.content))
	}

	chunk := table.content[offset:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return nil, fmt.Errorf(
			"%w. string at offset (%d) is not NUL terminated",
			ErrMalformedStringTable,
			offset)
	}

	return chunk[:end:end], nil
}

func (table *StringTable) Get(offset uint32) (string, error) {
	value, err := table.Bytes(offset)
	if err != nil {
		return "", err
	}

	return string(value), nil
}

// All returns every NUL terminated run in table order, starting with the
// leading empty string.  Trailing bytes without a terminator are dropped.
func (table *StringTable) All() []string {
	result := []string{}

	start := 0
	for idx, b := range table.content {
		if b == 0 {
			result = append(result, string(table.content[start:idx]))
			start = idx + 1
		}
	}

	return result
}

// NumEntries counts the terminated strings after the leading empty string.
func (table *StringTable) NumEntries() int {
	if len(table.content) == 0 {
		return 0
	}

	return bytes.Count(table.content[1:], []byte{0})
}

// ResolvedSymbol is a raw symbol with its name looked up in the symbol
// table's linked string table.
type ResolvedSymbol struct {
	Symbol

	Name string
}

// SymbolTable is a borrowed view of a SHT_SYMTAB or SHT_DYNSYM section,
// bound to the string table named by the section's sh_link.
type SymbolTable struct {
	Table[Symbol]

	Header      SectionHeader
	StringTable *StringTable
}

func NewSymbolTable(
	headers *Headers,
	header SectionHeader,
) (
	*SymbolTable,
	error,
) {
	if header.Type != SectionTypeSymbolTable &&
		header.Type != SectionTypeDynamicSymbolTable {

		return nil, fmt.Errorf(
			"%w. section type (%d) is not a symbol table",
			ErrWrongSectionKind,
			header.Type)
	}

	// See elf spec. Figure 1-12. sh_link and sh_info Interpretation.
	if header.Link == SectionIndexUndefined {
		return nil, fmt.Errorf(
			"%w. symbol table has no string table link",
			ErrUnresolvableLink)
	}

	linked, ok := headers.SectionHeaderByIndex(int(header.Link))
	if !ok {
		return nil, fmt.Errorf(
			"%w. string table index out of bound (%d >= %d)",
			ErrUnresolvableLink,
			header.Link,
			headers.SectionHeaders.Len())
	}

	stringTable, err := NewStringTable(headers.content, linked)
	if err != nil {
		return nil, fmt.Errorf(
			"%w. string table index (%d): %w",
			ErrUnresolvableLink,
			header.Link,
			err)
	}

	content, err := header.Content(headers.content)
	if err != nil {
		return nil, err
	}

	table, err := newSizedTable[Symbol](content, header.EntrySize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse symbol table: %w", err)
	}

	return &SymbolTable{
		Table:       table,
		Header:      header,
		StringTable: stringTable,
	}, nil
}

func (table *SymbolTable) Symbol(index int) (Symbol, error) {
	return table.Get(index)
}

// Resolve looks up the symbol's name.  Name index 0 is the anonymous symbol.
func (table *SymbolTable) Resolve(symbol Symbol) (ResolvedSymbol, error) {
	if symbol.NameIndex == 0 {
		return ResolvedSymbol{Symbol: symbol}, nil
	}

	name, err := table.StringTable.Get(symbol.NameIndex)
	if err != nil {
		return ResolvedSymbol{}, fmt.Errorf(
			"failed to resolve symbol name: %w",
			err)
	}

	return ResolvedSymbol{
		Symbol: symbol,
		Name:   name,
	}, nil
}

func (table *SymbolTable) ResolvedSymbol(index int) (ResolvedSymbol, error) {
	symbol, err := table.Get(index)
	if err != nil {
		return ResolvedSymbol{}, err
	}

	return table.Resolve(symbol)
}

// ResolvedSymbols iterates over the symbols in table order.  Iteration stops
// at the first symbol whose name cannot be resolved.
func (table *SymbolTable) ResolvedSymbols() iter.Seq2[ResolvedSymbol, error] {
	return func(yield func(ResolvedSymbol, error) bool) {
		for _, symbol := range table.All() {
			resolved, err := table.Resolve(symbol)
			if !yield(resolved, err) || err != nil {
				return
			}
		}
	}
}
