package elf

import (
	"errors"
	"fmt"
	"io"
)

const (
	// Upper bound on a single read from an image.  Sizes come from untrusted
	// dynamic entries / program headers.
	MaxImageReadSize = 1 << 30
)

// AddressSpace provides the bytes of a loaded image by absolute virtual
// address.
type AddressSpace interface {
	Bytes(address uint64, size uint64) ([]byte, error)
}

// Image is a loaded elf image: an address space in which the image's
// segments are mapped at LoadBase + p_vaddr.  Dynamic entries and program
// headers hold link time virtual addresses; Image rebases them.
type Image struct {
	Memory   AddressSpace
	LoadBase uint64
}

// Bytes returns the size bytes at link time virtual address vaddr.
func (image Image) Bytes(vaddr uint64, size uint64) ([]byte, error) {
	if size > MaxImageReadSize {
		return nil, fmt.Errorf(
			"%w. read size (%d) exceeds limit (%d)",
			ErrOutOfBounds,
			size,
			MaxImageReadSize)
	}

	address := image.LoadBase + vaddr
	if address < vaddr || address+size < address {
		return nil, fmt.Errorf(
			"%w. address %#x + load base %#x (size %d) overflows",
			ErrOutOfBounds,
			vaddr,
			image.LoadBase,
			size)
	}

	return image.Memory.Bytes(address, size)
}

// LoadedSegments is an address space holding every PT_LOAD segment of a
// file, laid out the way a loader maps them: p_filesz bytes copied from the
// file, zero filled up to p_memsz.
type LoadedSegments struct {
	base   uint64
	memory []byte
}

// LoadSegments maps the loadable segments of the parsed file at loadBase.
func LoadSegments(headers *Headers, loadBase uint64) (Image, error) {
	low := ^uint64(0)
	high := uint64(0)
	for idx, header := range headers.ProgramHeaders.All() {
		if header.Type != ProgramTypeLoadable {
			continue
		}

		end := header.VirtualAddress + header.MemoryImageSize
		if end < header.VirtualAddress {
			return Image{}, fmt.Errorf(
				"%w. segment %d's memory image overflows",
				ErrOutOfBounds,
				idx)
		}

		if header.FileImageSize > header.MemoryImageSize {
			return Image{}, fmt.Errorf(
				"%w. segment %d's file size (%d) > memory size (%d)",
				ErrMalformedTable,
				idx,
				header.FileImageSize,
				header.MemoryImageSize)
		}

		low = min(low, header.VirtualAddress)
		high = max(high, end)
	}

	if low > high { // no loadable segment
		low = 0
		high = 0
	}

	if high-low > MaxImageReadSize {
		return Image{}, fmt.Errorf(
			"%w. image size (%d) exceeds limit (%d)",
			ErrOutOfBounds,
			high-low,
			MaxImageReadSize)
	}

	base := loadBase + low
	if base < loadBase || base+(high-low) < base {
		return Image{}, fmt.Errorf(
			"%w. load base %#x overflows",
			ErrOutOfBounds,
			loadBase)
	}

	memory := make([]byte, high-low)
	for idx, header := range headers.ProgramHeaders.All() {
		if header.Type != ProgramTypeLoadable {
			continue
		}

		data, err := Span(
			headers.content,
			header.ContentOffset,
			header.FileImageSize)
		if err != nil {
			return Image{}, fmt.Errorf(
				"failed to load segment %d: %w",
				idx,
				err)
		}

		copy(memory[header.VirtualAddress-low:], data)
	}

	return Image{
		Memory: &LoadedSegments{
			base:   base,
			memory: memory,
		},
		LoadBase: loadBase,
	}, nil
}

// Bytes returns a slice borrowed from the mapping.
func (segments *LoadedSegments) Bytes(
	address uint64,
	size uint64,
) (
	[]byte,
	error,
) {
	if address < segments.base {
		return nil, fmt.Errorf(
			"%w. address %#x is below the mapped image (%#x)",
			ErrOutOfBounds,
			address,
			segments.base)
	}

	return Span(segments.memory, address-segments.base, size)
}

type readerAddressSpace struct {
	io.ReaderAt
}

// NewReaderAddressSpace adapts a reader keyed by absolute virtual address
// (e.g., a process' memory).  Each request is copied out of the reader.
func NewReaderAddressSpace(reader io.ReaderAt) AddressSpace {
	return readerAddressSpace{
		ReaderAt: reader,
	}
}

func (space readerAddressSpace) Bytes(
	address uint64,
	size uint64,
) (
	[]byte,
	error,
) {
	if address > uint64(maxInt) || size > uint64(maxInt)-address {
		return nil, fmt.Errorf(
			"%w. address %#x (size %d) is not addressable",
			ErrOutOfBounds,
			address,
			size)
	}

	out := make([]byte, size)
	n, err := space.ReadAt(out, int64(address))
	if n == len(out) {
		return out, nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf(
			"%w. short read at %#x (%d < %d)",
			ErrOutOfBounds,
			address,
			n,
			size)
	}

	return nil, fmt.Errorf("failed to read %#x (%d): %w", address, size, err)
}
