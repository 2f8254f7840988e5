package parsed

import (
	"fmt"
)

// RelocationType is a machine dependent r_info type.
type RelocationType struct {
	Machine Machine
	code    uint32
}

func NewRelocationType(machine Machine, code uint32) RelocationType {
	return RelocationType{
		Machine: machine,
		code:    code,
	}
}

func (relocationType RelocationType) Code() uint32 {
	return relocationType.code
}

// Name returns the relocation's name, if known.
func (relocationType RelocationType) Name() (string, bool) {
	var names map[uint32]string
	switch relocationType.Machine {
	case MachineX86_64:
		names = amd64RelocationNames
	case MachineAArch64:
		names = aarch64RelocationNames
	default:
		return "", false
	}

	name, ok := names[relocationType.code]
	return name, ok
}

// String returns the relocation's name.  Unknown types are displayed in hex.
func (relocationType RelocationType) String() string {
	name, ok := relocationType.Name()
	if ok {
		return name
	}

	return fmt.Sprintf("%#x", relocationType.code)
}

// See System V x86-64 psABI, table 4.9
var amd64RelocationNames = map[uint32]string{
	0:  "R_X86_64_NONE",
	1:  "R_X86_64_64",
	2:  "R_X86_64_PC32",
	3:  "R_X86_64_GOT32",
	4:  "R_X86_64_PLT32",
	5:  "R_X86_64_COPY",
	6:  "R_X86_64_GLOB_DAT",
	7:  "R_X86_64_JUMP_SLOT",
	8:  "R_X86_64_RELATIVE",
	9:  "R_X86_64_GOTPCREL",
	10: "R_X86_64_32",
	11: "R_X86_64_32S",
	12: "R_X86_64_16",
	13: "R_X86_64_PC16",
	14: "R_X86_64_8",
	15: "R_X86_64_PC8",
	16: "R_X86_64_DTPMOD64",
	17: "R_X86_64_DTPOFF64",
	18: "R_X86_64_TPOFF64",
	19: "R_X86_64_TLSGD",
	20: "R_X86_64_TLSLD",
	21: "R_X86_64_DTPOFF32",
	22: "R_X86_64_GOTTPOFF",
	23: "R_X86_64_TPOFF32",
	24: "R_X86_64_PC64",
	25: "R_X86_64_GOTOFF64",
	26: "R_X86_64_GOTPC32",
	27: "R_X86_64_GOT64",
	28: "R_X86_64_GOTPCREL64",
	29: "R_X86_64_GOTPC64",
	30: "R_X86_64_GOTPLT64",
	31: "R_X86_64_PLTOFF64",
	32: "R_X86_64_SIZE32",
	33: "R_X86_64_SIZE64",
	34: "R_X86_64_GOTPC32_TLSDESC",
	35: "R_X86_64_TLSDESC_CALL",
	36: "R_X86_64_TLSDESC",
	37: "R_X86_64_IRELATIVE",
	38: "R_X86_64_RELATIVE64",
	41: "R_X86_64_GOTPCRELX",
	42: "R_X86_64_REX_GOTPCRELX",
}

// See ELF for the Arm 64-bit Architecture (AArch64), section 5.7
var aarch64RelocationNames = map[uint32]string{
	0:     "R_AARCH64_NONE",
	0x101: "R_AARCH64_ABS64",
	0x102: "R_AARCH64_ABS32",
	0x103: "R_AARCH64_ABS16",
	0x104: "R_AARCH64_PREL64",
	0x105: "R_AARCH64_PREL32",
	0x106: "R_AARCH64_PREL16",
	0x113: "R_AARCH64_ADR_PREL_PG_HI21",
	0x115: "R_AARCH64_ADD_ABS_LO12_NC",
	0x116: "R_AARCH64_LDST8_ABS_LO12_NC",
	0x11a: "R_AARCH64_JUMP26",
	0x11b: "R_AARCH64_CALL26",
	0x11c: "R_AARCH64_LDST16_ABS_LO12_NC",
	0x11d: "R_AARCH64_LDST32_ABS_LO12_NC",
	0x11e: "R_AARCH64_LDST64_ABS_LO12_NC",
	0x12b: "R_AARCH64_LDST128_ABS_LO12_NC",
	0x137: "R_AARCH64_ADR_GOT_PAGE",
	0x138: "R_AARCH64_LD64_GOT_LO12_NC",
	0x400: "R_AARCH64_COPY",
	0x401: "R_AARCH64_GLOB_DAT",
	0x402: "R_AARCH64_JUMP_SLOT",
	0x403: "R_AARCH64_RELATIVE",
	0x404: "R_AARCH64_TLS_DTPMOD",
	0x405: "R_AARCH64_TLS_DTPREL",
	0x406: "R_AARCH64_TLS_TPREL",
	0x407: "R_AARCH64_TLSDESC",
	0x408: "R_AARCH64_IRELATIVE",
}

type Relocation struct {
	Offset      uint64
	Type        RelocationType
	SymbolIndex uint32

	HasAddend bool
	Addend    int64

	// nil when SymbolIndex is 0 (no symbol)
	Symbol *Symbol
}

// SymbolName returns the referenced symbol's name, or "" when the
// relocation has no symbol.
func (relocation Relocation) SymbolName() string {
	if relocation.Symbol == nil {
		return ""
	}

	return relocation.Symbol.Name
}
