// Package disassembler decodes x86-64 machine code out of a loaded elf image.
package disassembler

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/parsed"
)

const (
	maxX64InstructionLength = 15

	// Initial decode capacity estimate.
	averageX64InstructionLength = 4
)

var (
	ErrUnsupportedMachine = fmt.Errorf("unsupported machine")
	ErrInvalidRange       = fmt.Errorf("invalid disassembly range")
)

type Instruction struct {
	Address uint64
	x86asm.Inst
}

func (inst Instruction) String() string {
	return fmt.Sprintf(
		"0x%016x: %s",
		inst.Address,
		x86asm.GNUSyntax(inst.Inst, inst.Address, nil))
}

type Disassembler struct {
	memory elf.AddressSpace
}

// New returns a disassembler reading from memory.  When memory is an
// elf.Image, addresses are link time virtual addresses.
func New(
	machine parsed.Machine,
	memory elf.AddressSpace,
) (
	*Disassembler,
	error,
) {
	if machine != parsed.MachineX86_64 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMachine, machine)
	}

	return &Disassembler{
		memory: memory,
	}, nil
}

// Disassemble decodes up to numInstructions instructions starting at
// address.  Decoding stops early at the end of readable memory or at the
// first undecodable instruction.
func (disassembler *Disassembler) Disassemble(
	address uint64,
	numInstructions int,
) (
	[]Instruction,
	error,
) {
	if numInstructions < 0 {
		return nil, fmt.Errorf(
			"%w. invalid number of instructions to disassemble: %d",
			ErrInvalidRange,
			numInstructions)
	} else if numInstructions == 0 {
		return nil, nil
	}

	data, err := disassembler.readPrefix(
		address,
		uint64(numInstructions*maxX64InstructionLength))
	if err != nil {
		return nil, err
	}

	return decode(address, data, numInstructions), nil
}

// DisassembleRange decodes the instructions in [address, address + size).
func (disassembler *Disassembler) DisassembleRange(
	address uint64,
	size uint64,
) (
	[]Instruction,
	error,
) {
	if size == 0 {
		return nil, fmt.Errorf("%w. empty range at %#x", ErrInvalidRange, address)
	}

	data, err := disassembler.memory.Bytes(address, size)
	if err != nil {
		return nil, err
	}

	return decode(address, data, len(data)), nil
}

// DisassembleSymbol decodes a function symbol's body.
func (disassembler *Disassembler) DisassembleSymbol(
	symbol parsed.Symbol,
) (
	[]Instruction,
	error,
) {
	if symbol.Type != parsed.SymbolFunction || symbol.IsUndefined() {
		return nil, fmt.Errorf(
			"%w. %s is not a defined function",
			ErrInvalidRange,
			symbol.Name)
	}

	return disassembler.DisassembleRange(symbol.Value, symbol.Size)
}

// readPrefix returns the longest readable prefix of [address, address + size)
// found by halving the request.
func (disassembler *Disassembler) readPrefix(
	address uint64,
	size uint64,
) (
	[]byte,
	error,
) {
	for {
		data, err := disassembler.memory.Bytes(address, size)
		if err == nil {
			return data, nil
		}

		if !errors.Is(err, elf.ErrOutOfBounds) || size == 1 {
			return nil, err
		}

		size /= 2
	}
}

// decodeCapacity bounds the initial result capacity by the data size.
func decodeCapacity(numInstructions int, dataSize int) int {
	return min(numInstructions, dataSize/averageX64InstructionLength+1)
}

func decode(address uint64, data []byte, numInstructions int) []Instruction {
	result := make(
		[]Instruction,
		0,
		decodeCapacity(numInstructions, len(data)))
	for len(data) > 0 && len(result) < numInstructions {
		inst, err := x86asm.Decode(data, 64)
		if err != nil {
			break
		}

		result = append(
			result,
			Instruction{
				Address: address,
				Inst:    inst,
			})

		data = data[inst.Len:]
		address += uint64(inst.Len)
	}

	return result
}
