package elf

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math/bits"
)

// Record is a fixed size elf64 record that a Table can decode.
type Record interface {
	ProgramHeader | SectionHeader | Symbol | Rel | Rela | Dynamic
}

func recordSize[T Record]() uint64 {
	var record T
	return uint64(binary.Size(record))
}

// Table is a read-only view of count fixed size records laid out entrySize
// bytes apart.  The records are decoded on access; the table never copies
// the backing buffer.
//
// entrySize may be larger than the record size (trailing bytes of each
// entry are ignored), but never smaller.
type Table[T Record] struct {
	content   []byte
	entrySize uint64
	count     int
}

// NewTable returns a table over content[offset : offset+entrySize*count].
func NewTable[T Record](
	content []byte,
	offset uint64,
	entrySize uint64,
	count uint64,
) (
	Table[T],
	error,
) {
	if count == 0 {
		return Table[T]{entrySize: entrySize}, nil
	}

	size := recordSize[T]()
	if entrySize < size {
		return Table[T]{}, fmt.Errorf(
			"%w. entry size (%d) smaller than record size (%d)",
			ErrMalformedTable,
			entrySize,
			size)
	}

	hi, length := bits.Mul64(entrySize, count)
	if hi != 0 || count > uint64(maxInt) {
		return Table[T]{}, fmt.Errorf(
			"%w. table size (%d x %d) overflows",
			ErrMalformedTable,
			entrySize,
			count)
	}

	span, err := Span(content, offset, length)
	if err != nil {
		return Table[T]{}, fmt.Errorf("%w: %w", ErrMalformedTable, err)
	}

	return Table[T]{
		content:   span,
		entrySize: entrySize,
		count:     int(count),
	}, nil
}

// newSizedTable returns a table over a span whose entry count is derived
// from size / entrySize, as is the case for sections and dynamic entries.
func newSizedTable[T Record](
	content []byte,
	entrySize uint64,
) (
	Table[T],
	error,
) {
	if entrySize == 0 {
		if len(content) == 0 {
			return Table[T]{}, nil
		}
		return Table[T]{}, fmt.Errorf("%w. zero entry size", ErrMalformedTable)
	}

	size := uint64(len(content))
	if size%entrySize != 0 {
		return Table[T]{}, fmt.Errorf(
			"%w. table size (%d) is not a multiple of entry size (%d)",
			ErrMalformedTable,
			size,
			entrySize)
	}

	return NewTable[T](content, 0, entrySize, size/entrySize)
}

const maxInt = int(^uint(0) >> 1)

func (table Table[T]) Len() int {
	return table.count
}

func (table Table[T]) EntrySize() uint64 {
	return table.entrySize
}

func (table Table[T]) Get(index int) (T, error) {
	if index < 0 || index >= table.count {
		var zero T
		return zero, fmt.Errorf(
			"%w. %d not in [0, %d)",
			ErrIndexOutOfRange,
			index,
			table.count)
	}

	return table.decode(index), nil
}

func (table Table[T]) decode(index int) T {
	record, err := decodeRecord[T](
		table.content,
		uint64(index)*table.entrySize)
	if err != nil {
		panic("should never happen: " + err.Error())
	}

	return record
}

// All iterates over the records in table order.
func (table Table[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for idx := 0; idx < table.count; idx++ {
			if !yield(idx, table.decode(idx)) {
				return
			}
		}
	}
}

// decodeRecord decodes a single record at offset.
func decodeRecord[T Record](content []byte, offset uint64) (T, error) {
	var record T

	entry, err := Span(content, offset, recordSize[T]())
	if err != nil {
		return record, err
	}

	_, err = binary.Decode(entry, binary.LittleEndian, &record)
	if err != nil {
		panic("should never happen: " + err.Error())
	}

	return record, nil
}
