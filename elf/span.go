package elf

import (
	"fmt"
)

// Span returns content[offset : offset+length].  The returned slice borrows
// content; its capacity is clipped so that appends cannot clobber the
// remainder of the buffer.
//
// Every record decode in this package goes through Span.
func Span(content []byte, offset uint64, length uint64) ([]byte, error) {
	end := offset + length
	if end < offset {
		return nil, fmt.Errorf(
			"%w. span [%d, %d+%d) overflows",
			ErrOutOfBounds,
			offset,
			offset,
			length)
	}

	if end > uint64(len(content)) {
		return nil, fmt.Errorf(
			"%w. span [%d, %d) exceeds buffer size (%d)",
			ErrOutOfBounds,
			offset,
			end,
			len(content))
	}

	return content[offset:end:end], nil
}
