// Package parsed re-expresses the raw elf records as checked domain values:
// enums instead of integer codes, names instead of string table offsets,
// symbols instead of symbol table indices.
//
// Closed domains (class, data encoding, object type, symbol type / binding)
// fail to decode on unrecognized codes.  Open domains (machine, segment
// type, section type, dynamic tag, relocation type) never fail; unrecognized
// codes are preserved and displayed in hex.
package parsed

import (
	"fmt"

	"github.com/pattyshack/elfinfo/elf"
)

// EI_CLASS
type ObjectClass byte

const (
	Class32 = ObjectClass(elf.Class32)
	Class64 = ObjectClass(elf.Class64)
)

func DecodeObjectClass(code byte) (ObjectClass, error) {
	switch ObjectClass(code) {
	case Class32, Class64:
		return ObjectClass(code), nil
	default:
		return 0, fmt.Errorf("%w (%#x)", ErrUnknownClass, code)
	}
}

func (class ObjectClass) Code() byte {
	return byte(class)
}

func (class ObjectClass) String() string {
	switch class {
	case Class32:
		return "ELF32"
	case Class64:
		return "ELF64"
	default:
		return fmt.Sprintf("ObjectClass(%#x)", byte(class))
	}
}

// EI_DATA
type DataEncoding byte

const (
	LittleEndian = DataEncoding(elf.DataEncodingLittleEndian)
	BigEndian    = DataEncoding(elf.DataEncodingBigEndian)
)

func DecodeDataEncoding(code byte) (DataEncoding, error) {
	switch DataEncoding(code) {
	case LittleEndian, BigEndian:
		return DataEncoding(code), nil
	default:
		return 0, fmt.Errorf("%w (%#x)", ErrUnknownDataEncoding, code)
	}
}

func (encoding DataEncoding) Code() byte {
	return byte(encoding)
}

func (encoding DataEncoding) String() string {
	switch encoding {
	case LittleEndian:
		return "2's complement, little endian"
	case BigEndian:
		return "2's complement, big endian"
	default:
		return fmt.Sprintf("DataEncoding(%#x)", byte(encoding))
	}
}

// e_type
type ObjectType uint16

const (
	ObjectTypeNone         = ObjectType(0) // ET_NONE
	ObjectTypeRelocatable  = ObjectType(1) // ET_REL
	ObjectTypeExecutable   = ObjectType(2) // ET_EXEC
	ObjectTypeSharedObject = ObjectType(3) // ET_DYN
	ObjectTypeCore         = ObjectType(4) // ET_CORE

	ObjectTypeLowOS    = ObjectType(0xfe00) // ET_LOOS
	ObjectTypeHighOS   = ObjectType(0xfeff) // ET_HIOS
	ObjectTypeLowProc  = ObjectType(0xff00) // ET_LOPROC
	ObjectTypeHighProc = ObjectType(0xffff) // ET_HIPROC
)

func DecodeObjectType(code uint16) (ObjectType, error) {
	objectType := ObjectType(code)
	if objectType <= ObjectTypeCore ||
		objectType.IsOperatingSystemSpecific() ||
		objectType.IsProcessorSpecific() {

		return objectType, nil
	}

	return 0, fmt.Errorf("%w (%#x)", ErrUnknownObjectType, code)
}

func (objectType ObjectType) Code() uint16 {
	return uint16(objectType)
}

func (objectType ObjectType) IsOperatingSystemSpecific() bool {
	return ObjectTypeLowOS <= objectType && objectType <= ObjectTypeHighOS
}

func (objectType ObjectType) IsProcessorSpecific() bool {
	return ObjectTypeLowProc <= objectType
}

func (objectType ObjectType) String() string {
	switch objectType {
	case ObjectTypeNone:
		return "NONE (No file type)"
	case ObjectTypeRelocatable:
		return "REL (Relocatable file)"
	case ObjectTypeExecutable:
		return "EXEC (Executable file)"
	case ObjectTypeSharedObject:
		return "DYN (Shared object file)"
	case ObjectTypeCore:
		return "CORE (Core file)"
	}

	if objectType.IsOperatingSystemSpecific() {
		return fmt.Sprintf("OS Specific (%#04x)", uint16(objectType))
	}

	if objectType.IsProcessorSpecific() {
		return fmt.Sprintf("Processor Specific (%#04x)", uint16(objectType))
	}

	return fmt.Sprintf("ObjectType(%#x)", uint16(objectType))
}

// e_machine.  Only the common architectures are named.
type Machine uint16

const (
	MachineNone    = Machine(0)   // EM_NONE
	MachineSPARC   = Machine(2)   // EM_SPARC
	Machine386     = Machine(3)   // EM_386
	MachineMIPS    = Machine(8)   // EM_MIPS
	MachinePPC     = Machine(20)  // EM_PPC
	MachinePPC64   = Machine(21)  // EM_PPC64
	MachineS390    = Machine(22)  // EM_S390
	MachineARM     = Machine(40)  // EM_ARM
	MachineX86_64  = Machine(62)  // EM_X86_64
	MachineAArch64 = Machine(183) // EM_AARCH64
	MachineRISCV   = Machine(243) // EM_RISCV
	MachineBPF     = Machine(247) // EM_BPF
)

func (machine Machine) Code() uint16 {
	return uint16(machine)
}

func (machine Machine) String() string {
	switch machine {
	case MachineNone:
		return "None"
	case MachineSPARC:
		return "Sparc"
	case Machine386:
		return "Intel 80386"
	case MachineMIPS:
		return "MIPS R3000"
	case MachinePPC:
		return "PowerPC"
	case MachinePPC64:
		return "PowerPC64"
	case MachineS390:
		return "IBM S/390"
	case MachineARM:
		return "ARM"
	case MachineX86_64:
		return "Advanced Micro Devices X86-64"
	case MachineAArch64:
		return "AArch64"
	case MachineRISCV:
		return "RISC-V"
	case MachineBPF:
		return "Linux BPF"
	default:
		return fmt.Sprintf("<unknown>: %#x", uint16(machine))
	}
}

type Header struct {
	Class        ObjectClass
	DataEncoding DataEncoding
	OSABI        byte
	ABIVersion   byte

	Type       ObjectType
	Machine    Machine
	EntryPoint uint64
	Flags      uint32
}

func DecodeHeader(header elf.FileHeader) (Header, error) {
	class, err := DecodeObjectClass(header.Class)
	if err != nil {
		return Header{}, err
	}

	encoding, err := DecodeDataEncoding(header.DataEncoding)
	if err != nil {
		return Header{}, err
	}

	objectType, err := DecodeObjectType(header.FileType)
	if err != nil {
		return Header{}, err
	}

	return Header{
		Class:        class,
		DataEncoding: encoding,
		OSABI:        header.OperatingSystemABI,
		ABIVersion:   header.ABIVersion,
		Type:         objectType,
		Machine:      Machine(header.MachineArchitecture),
		EntryPoint:   header.EntryPointAddress,
		Flags:        header.ArchitectureFlags,
	}, nil
}
