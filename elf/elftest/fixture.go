package elftest

import (
	"github.com/pattyshack/elfinfo/elf"
)

const (
	FixtureVirtualBase = 0x400000

	// R_X86_64_GLOB_DAT / R_X86_64_RELATIVE
	relocationGlobalData = 6
	relocationRelative   = 8

	symbolInfoFunctionGlobal = 1<<4 | 2
	symbolInfoObjectGlobal   = 1<<4 | 1
	symbolInfoFileLocal      = 4

	sectionFlagExecInstr = 0x4
	sectionFlagWrite     = 0x1
)

// Fixture describes the shared object built by NewFixture.
type Fixture struct {
	*Builder

	// push %rbp; mov %rsp,%rbp; pop %rbp; ret
	Text []byte

	DynamicSymbols []string // .dynsym names, excluding the null symbol
	Symbols        []string // .symtab names, excluding the null symbol
	Needed         string

	RelativeAddend int64
}

// NewFixture returns a builder for an x86-64 shared object with .text,
// .dynsym/.dynstr, .rela.dyn, .dynamic, .symtab/.strtab and .bss, a
// PT_LOAD segment covering the whole file and a PT_DYNAMIC segment covering
// .dynamic.
func NewFixture() *Fixture {
	fixture := &Fixture{
		Builder:        NewBuilder(),
		Text:           []byte{0x55, 0x48, 0x89, 0xe5, 0x5d, 0xc3, 0x90, 0x90},
		DynamicSymbols: []string{"foo", "bar"},
		Symbols:        []string{"main.c", "_start", "_ZN3foo3barEv"},
		Needed:         "libc.so.6",
		RelativeAddend: 0x1000,
	}

	builder := fixture.Builder
	builder.VirtualBase = FixtureVirtualBase

	dynstr, dynstrOffsets := StringTable(
		fixture.Needed,
		fixture.DynamicSymbols[0],
		fixture.DynamicSymbols[1])
	strtab, strtabOffsets := StringTable(fixture.Symbols...)

	builder.AddSection(Section{
		Name: ".text",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeProgramDefinedInfo,
			Flags:            sectionFlagAlloc | sectionFlagExecInstr,
			AddressAlignment: 16,
		},
		Content: fixture.Text,
	})
	builder.AddSection(Section{
		Name: ".dynstr",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeStringTable,
			Flags:            sectionFlagAlloc,
			AddressAlignment: 1,
		},
		Content: dynstr,
	})

	textIndex := uint16(builder.SectionIndex(".text"))

	// placeholder, filled in once the layout is known.
	builder.AddSection(Section{
		Name: ".dynsym",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeDynamicSymbolTable,
			Flags:            sectionFlagAlloc,
			Link:             builder.SectionIndex(".dynstr"),
			Info:             1,
			AddressAlignment: 8,
			EntrySize:        elf.Elf64SymbolEntrySize,
		},
		Content: make([]byte, 3*elf.Elf64SymbolEntrySize),
	})
	builder.AddSection(Section{
		Name: ".rela.dyn",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeRelocationWithAddends,
			Flags:            sectionFlagAlloc,
			Link:             builder.SectionIndex(".dynsym"),
			AddressAlignment: 8,
			EntrySize:        elf.Elf64RelaEntrySize,
		},
		Content: make([]byte, 2*elf.Elf64RelaEntrySize),
	})
	builder.AddSection(Section{
		Name: ".dynamic",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeDynamic,
			Flags:            sectionFlagAlloc | sectionFlagWrite,
			Link:             builder.SectionIndex(".dynstr"),
			AddressAlignment: 8,
			EntrySize:        elf.Elf64DynamicEntrySize,
		},
		Content: make([]byte, 9*elf.Elf64DynamicEntrySize),
	})
	builder.AddSection(Section{
		Name: ".strtab",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeStringTable,
			AddressAlignment: 1,
		},
		Content: strtab,
	})
	builder.AddSection(Section{
		Name: ".symtab",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeSymbolTable,
			Link:             builder.SectionIndex(".strtab"),
			Info:             2,
			AddressAlignment: 8,
			EntrySize:        elf.Elf64SymbolEntrySize,
		},
		Content: make([]byte, 4*elf.Elf64SymbolEntrySize),
	})
	builder.AddSection(Section{
		Name: ".bss",
		Header: elf.SectionHeader{
			Type:             elf.SectionTypeNoSpace,
			Flags:            sectionFlagAlloc | sectionFlagWrite,
			AddressAlignment: 8,
		},
	})

	// Program headers precede section contents; segments must be declared
	// before any address is computed.
	builder.AddSegment(Segment{
		Header: elf.ProgramHeader{
			Type:      elf.ProgramTypeLoadable,
			Flags:     0x4 | 0x2 | 0x1, // PF_R | PF_W | PF_X
			Alignment: 0x1000,
		},
		WholeFile: true,
	})
	builder.AddSegment(Segment{
		Header: elf.ProgramHeader{
			Type:      elf.ProgramTypeDynamic,
			Flags:     0x4 | 0x2, // PF_R | PF_W
			Alignment: 8,
		},
		Sections: []string{".dynamic"},
	})

	textAddress := builder.Address(".text")
	builder.Entry = textAddress

	builder.Sections[builder.SectionIndex(".dynsym")-1].Content = Encode(
		elf.Symbol{},
		elf.Symbol{
			NameIndex:    dynstrOffsets[1],
			Info:         symbolInfoFunctionGlobal,
			SectionIndex: textIndex,
			Value:        textAddress,
			Size:         6,
		},
		elf.Symbol{
			NameIndex:    dynstrOffsets[2],
			Info:         symbolInfoObjectGlobal,
			SectionIndex: elf.SectionIndexUndefined,
		})

	builder.Sections[builder.SectionIndex(".rela.dyn")-1].Content = Encode(
		elf.Rela{
			Offset:         builder.Address(".dynamic") - 8,
			RelocationInfo: elf.NewRelocationInfo(0, relocationRelative),
			Addend:         fixture.RelativeAddend,
		},
		elf.Rela{
			Offset:         builder.Address(".dynamic") - 16,
			RelocationInfo: elf.NewRelocationInfo(2, relocationGlobalData),
		})

	builder.Sections[builder.SectionIndex(".dynamic")-1].Content = Encode(
		elf.Dynamic{Tag: elf.DynamicTagNeeded, Value: uint64(dynstrOffsets[0])},
		elf.Dynamic{Tag: elf.DynamicTagStringTable, Value: builder.Address(".dynstr")},
		elf.Dynamic{Tag: elf.DynamicTagSymbolTable, Value: builder.Address(".dynsym")},
		elf.Dynamic{Tag: elf.DynamicTagStringTableSize, Value: uint64(len(dynstr))},
		elf.Dynamic{Tag: elf.DynamicTagSymbolEntrySize, Value: elf.Elf64SymbolEntrySize},
		elf.Dynamic{Tag: elf.DynamicTagRela, Value: builder.Address(".rela.dyn")},
		elf.Dynamic{Tag: elf.DynamicTagRelaSize, Value: 2 * elf.Elf64RelaEntrySize},
		elf.Dynamic{Tag: elf.DynamicTagRelaEntrySize, Value: elf.Elf64RelaEntrySize},
		elf.Dynamic{Tag: elf.DynamicTagNull})

	builder.Sections[builder.SectionIndex(".symtab")-1].Content = Encode(
		elf.Symbol{},
		elf.Symbol{
			NameIndex:    strtabOffsets[0],
			Info:         symbolInfoFileLocal,
			SectionIndex: elf.SectionIndexAbsolute,
		},
		elf.Symbol{
			NameIndex:    strtabOffsets[1],
			Info:         symbolInfoFunctionGlobal,
			SectionIndex: textIndex,
			Value:        textAddress,
			Size:         6,
		},
		elf.Symbol{
			NameIndex:    strtabOffsets[2],
			Info:         symbolInfoFunctionGlobal,
			SectionIndex: textIndex,
			Value:        textAddress + 6,
			Size:         2,
		})

	return fixture
}
