package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/glog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/parsed"
	"github.com/pattyshack/elfinfo/procfs"
)

type reportOptions struct {
	header         bool
	sections       bool
	segments       bool
	mapping        bool
	symbols        bool
	dynamicSymbols bool
	relocations    bool
	dynamic        bool
	needed         bool
	process        bool

	strings     string
	disassemble string

	demangle         bool
	disassembleLimit int
}

func (options *reportOptions) setAll() {
	options.header = true
	options.sections = true
	options.segments = true
	options.mapping = true
	options.symbols = true
	options.dynamicSymbols = true
	options.relocations = true
	options.dynamic = true
	options.needed = true
	options.process = true
}

type HeaderReport struct {
	Class        string `yaml:"class"`
	DataEncoding string `yaml:"data"`
	OSABI        byte   `yaml:"os_abi"`
	ABIVersion   byte   `yaml:"abi_version"`
	Type         string `yaml:"type"`
	Machine      string `yaml:"machine"`
	EntryPoint   string `yaml:"entry_point"`
	Flags        string `yaml:"flags"`
}

type SectionReport struct {
	Index     int    `yaml:"index"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Address   string `yaml:"address"`
	Offset    string `yaml:"offset"`
	Size      string `yaml:"size"`
	EntrySize string `yaml:"entry_size"`
	Flags     string `yaml:"flags"`
	Link      uint32 `yaml:"link"`
	Info      uint32 `yaml:"info"`
	Alignment uint64 `yaml:"alignment"`
}

type SegmentReport struct {
	Index           int    `yaml:"index"`
	Type            string `yaml:"type"`
	Offset          string `yaml:"offset"`
	VirtualAddress  string `yaml:"virtual_address"`
	PhysicalAddress string `yaml:"physical_address"`
	FileSize        string `yaml:"file_size"`
	MemorySize      string `yaml:"memory_size"`
	Flags           string `yaml:"flags"`
	Alignment       string `yaml:"alignment"`
}

type MappingReport struct {
	Segment  int      `yaml:"segment"`
	Sections []string `yaml:"sections"`
}

type SymbolReport struct {
	Index      int    `yaml:"index"`
	Value      string `yaml:"value"`
	Size       uint64 `yaml:"size"`
	Type       string `yaml:"type"`
	Binding    string `yaml:"binding"`
	Visibility string `yaml:"visibility"`
	Section    string `yaml:"section"`
	Name       string `yaml:"name"`
}

type RelocationReport struct {
	Offset string `yaml:"offset"`
	Type   string `yaml:"type"`
	Symbol string `yaml:"symbol,omitempty"`
	Addend *int64 `yaml:"addend,omitempty"`
}

type RelocationSectionReport struct {
	Section     string             `yaml:"section"`
	Relocations []RelocationReport `yaml:"relocations"`
}

type DynamicReport struct {
	Tag   string `yaml:"tag"`
	Value string `yaml:"value"`
}

type RegionReport struct {
	Range       string `yaml:"range"`
	Permissions string `yaml:"permissions"`
	Offset      string `yaml:"offset"`
	Pathname    string `yaml:"pathname,omitempty"`
}

type ProcessReport struct {
	Pid      int    `yaml:"pid"`
	Command  string `yaml:"command"`
	State    string `yaml:"state"`
	LoadBase string `yaml:"load_base"`

	// The mapped region holding the executable's first loadable segment.
	ImageRegion *RegionReport `yaml:"image_region,omitempty"`
}

type Report struct {
	Source string `yaml:"source"`

	Process        *ProcessReport            `yaml:"process,omitempty"`
	Header         *HeaderReport             `yaml:"header,omitempty"`
	Sections       []SectionReport           `yaml:"sections,omitempty"`
	Segments       []SegmentReport           `yaml:"segments,omitempty"`
	Mapping        []MappingReport           `yaml:"section_to_segment_mapping,omitempty"`
	Symbols        []SymbolReport            `yaml:"symbols,omitempty"`
	DynamicSymbols []SymbolReport            `yaml:"dynamic_symbols,omitempty"`
	Relocations    []RelocationSectionReport `yaml:"relocations,omitempty"`
	Dynamic        []DynamicReport           `yaml:"dynamic,omitempty"`
	Needed         []string                  `yaml:"needed,omitempty"`
	Strings        []string                  `yaml:"strings,omitempty"`
	Disassembly    []string                  `yaml:"disassembly,omitempty"`
}

func hex(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}

// buildReport collects the requested parts.  A part that fails to decode is
// logged and left out; the rest of the report continues.
func buildReport(src *source, options reportOptions) *Report {
	file := src.file
	report := &Report{
		Source: src.name,
	}

	if options.process && src.pid != 0 {
		process, err := processReport(src)
		if err != nil {
			glog.Warningf("%s: failed to inspect process: %v", src.name, err)
		}
		report.Process = process
	}

	if options.header {
		report.Header = &HeaderReport{
			Class:        file.Class.String(),
			DataEncoding: file.DataEncoding.String(),
			OSABI:        file.OSABI,
			ABIVersion:   file.ABIVersion,
			Type:         file.Type.String(),
			Machine:      file.Machine.String(),
			EntryPoint:   hex(file.EntryPoint),
			Flags:        hex(uint64(file.Flags)),
		}
	}

	if options.sections {
		report.Sections = lo.Map(
			file.Sections,
			func(section parsed.Section, _ int) SectionReport {
				return SectionReport{
					Index:     section.Index,
					Name:      section.Name,
					Type:      section.Type.String(),
					Address:   hex(section.Address),
					Offset:    hex(section.Offset),
					Size:      hex(section.Size),
					EntrySize: hex(section.EntrySize),
					Flags:     section.Flags.String(),
					Link:      section.Link,
					Info:      section.Info,
					Alignment: section.Alignment,
				}
			})
	}

	if options.segments {
		report.Segments = lo.Map(
			file.Segments,
			func(segment parsed.Segment, _ int) SegmentReport {
				return SegmentReport{
					Index:           segment.Index,
					Type:            segment.Type.String(),
					Offset:          hex(segment.Offset),
					VirtualAddress:  hex(segment.VirtualAddress),
					PhysicalAddress: hex(segment.PhysicalAddress),
					FileSize:        hex(segment.FileSize),
					MemorySize:      hex(segment.MemorySize),
					Flags:           segment.Flags.String(),
					Alignment:       hex(segment.Alignment),
				}
			})

		err := file.CheckSegmentSizes()
		if err != nil {
			glog.Warningf("%s: %v", src.name, err)
		}
	}

	if options.mapping {
		report.Mapping = lo.Map(
			file.SectionToSegmentMapping(),
			func(mapping parsed.SegmentMapping, _ int) MappingReport {
				return MappingReport{
					Segment:  mapping.Segment.Index,
					Sections: mapping.Sections,
				}
			})
	}

	if options.symbols {
		report.Symbols = symbolReports(
			src,
			parsed.SectionSymbolTable,
			options.demangle)
	}

	if options.dynamicSymbols {
		report.DynamicSymbols = symbolReports(
			src,
			parsed.SectionDynamicSymbolTable,
			options.demangle)
	}

	if options.relocations {
		sections, err := src.relocations()
		if err != nil {
			glog.Warningf("%s: failed to decode relocations: %v", src.name, err)
		}

		report.Relocations = lo.Map(
			sections,
			func(section parsed.RelocationSection, _ int) RelocationSectionReport {
				return relocationReport(section, options.demangle)
			})
	}

	if options.dynamic {
		entries, err := file.DynamicEntries()
		if err != nil {
			glog.Warningf("%s: failed to decode dynamic entries: %v", src.name, err)
		}

		report.Dynamic = lo.Map(
			entries,
			func(entry parsed.DynamicEntry, _ int) DynamicReport {
				value := hex(entry.Value)
				if entry.Tag.HasStringValue() {
					value = entry.StringValue
				}

				return DynamicReport{
					Tag:   entry.Tag.String(),
					Value: value,
				}
			})
	}

	if options.needed {
		needed, err := file.NeededLibraries()
		if err != nil {
			glog.Warningf("%s: failed to decode needed libraries: %v", src.name, err)
		}
		report.Needed = needed
	}

	if options.strings != "" {
		values, err := file.Strings(options.strings)
		if err != nil {
			glog.Warningf("%s: failed to dump %s: %v", src.name, options.strings, err)
		}
		report.Strings = values
	}

	if options.disassemble != "" {
		instructions, err := src.disassemble(
			options.disassemble,
			options.disassembleLimit)
		if err != nil {
			glog.Warningf(
				"%s: failed to disassemble %s: %v",
				src.name,
				options.disassemble,
				err)
		}

		for _, inst := range instructions {
			report.Disassembly = append(report.Disassembly, inst.String())
		}
	}

	return report
}

func processReport(src *source) (*ProcessReport, error) {
	status, err := procfs.GetProcessStatus(src.pid)
	if err != nil {
		return nil, err
	}

	regions, err := procfs.GetMappedMemoryRegions(src.pid)
	if err != nil {
		return nil, err
	}

	return newProcessReport(
		status,
		src.image.LoadBase,
		src.file.Segments,
		regions), nil
}

func newProcessReport(
	status procfs.ProcessStatus,
	loadBase uint64,
	segments []parsed.Segment,
	regions []procfs.MappedMemoryRegion,
) *ProcessReport {
	report := &ProcessReport{
		Pid:      status.Pid,
		Command:  status.Comm,
		State:    string(status.State),
		LoadBase: hex(loadBase),
	}

	loadable := lo.Filter(segments, func(segment parsed.Segment, _ int) bool {
		return segment.Type == parsed.SegmentLoad
	})
	if len(loadable) == 0 {
		return report
	}

	address := loadBase + lo.MinBy(
		loadable,
		func(a parsed.Segment, b parsed.Segment) bool {
			return a.VirtualAddress < b.VirtualAddress
		}).VirtualAddress

	region, ok := lo.Find(regions, func(region procfs.MappedMemoryRegion) bool {
		return region.Contains(address)
	})
	if !ok {
		return report
	}

	permissions := []byte("---p")
	if region.Read {
		permissions[0] = 'r'
	}
	if region.Write {
		permissions[1] = 'w'
	}
	if region.Execute {
		permissions[2] = 'x'
	}
	if !region.Private {
		permissions[3] = 's'
	}

	report.ImageRegion = &RegionReport{
		Range:       fmt.Sprintf("%x-%x", region.LowAddress, region.HighAddress),
		Permissions: string(permissions),
		Offset:      hex(region.Offset),
		Pathname:    region.Pathname,
	}

	return report
}

func symbolName(symbol parsed.Symbol, demangle bool) string {
	if demangle {
		return symbol.DemangledName()
	}
	return symbol.Name
}

func sectionIndexName(index uint16) string {
	switch index {
	case elf.SectionIndexUndefined:
		return "UND"
	case elf.SectionIndexAbsolute:
		return "ABS"
	case elf.SectionIndexCommon:
		return "COM"
	default:
		return fmt.Sprintf("%d", index)
	}
}

func symbolReports(
	src *source,
	sectionType parsed.SectionType,
	demangle bool,
) []SymbolReport {
	symbols, err := src.file.Symbols(sectionType)
	if err != nil {
		glog.V(1).Infof("%s: no %s symbols: %v", src.name, sectionType, err)
		return nil
	}

	return lo.Map(symbols, func(symbol parsed.Symbol, _ int) SymbolReport {
		return SymbolReport{
			Index:      symbol.Index,
			Value:      fmt.Sprintf("%016x", symbol.Value),
			Size:       symbol.Size,
			Type:       symbol.Type.String(),
			Binding:    symbol.Binding.String(),
			Visibility: symbol.Visibility.String(),
			Section:    sectionIndexName(symbol.SectionIndex),
			Name:       symbolName(symbol, demangle),
		}
	})
}

func relocationReport(
	section parsed.RelocationSection,
	demangle bool,
) RelocationSectionReport {
	return RelocationSectionReport{
		Section: section.Name,
		Relocations: lo.Map(
			section.Relocations,
			func(relocation parsed.Relocation, _ int) RelocationReport {
				entry := RelocationReport{
					Offset: fmt.Sprintf("%012x", relocation.Offset),
					Type:   relocation.Type.String(),
				}

				if relocation.Symbol != nil {
					entry.Symbol = symbolName(*relocation.Symbol, demangle)
				}

				if relocation.HasAddend {
					addend := relocation.Addend
					entry.Addend = &addend
				}

				return entry
			}),
	}
}

func writeReport(out io.Writer, format string, report *Report) error {
	if format == yamlFormat {
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)

		err := encoder.Encode(report)
		if err != nil {
			return err
		}

		return encoder.Close()
	}

	writeText(out, report)
	return nil
}

func writeText(out io.Writer, report *Report) {
	if report.Process != nil {
		process := report.Process
		fmt.Fprintln(out, "Process:")
		fmt.Fprintf(out, "  Pid:                  %d\n", process.Pid)
		fmt.Fprintf(out, "  Command:              %s\n", process.Command)
		fmt.Fprintf(out, "  State:                %s\n", process.State)
		fmt.Fprintf(out, "  Load base:            %s\n", process.LoadBase)
		if process.ImageRegion != nil {
			region := process.ImageRegion
			fmt.Fprintf(
				out,
				"  Image region:         %s %s %s %s\n",
				region.Range,
				region.Permissions,
				region.Offset,
				region.Pathname)
		}
		fmt.Fprintln(out)
	}

	if report.Header != nil {
		header := report.Header
		fmt.Fprintln(out, "ELF Header:")
		fmt.Fprintf(out, "  Class:                %s\n", header.Class)
		fmt.Fprintf(out, "  Data:                 %s\n", header.DataEncoding)
		fmt.Fprintf(out, "  OS/ABI:               %d\n", header.OSABI)
		fmt.Fprintf(out, "  ABI Version:          %d\n", header.ABIVersion)
		fmt.Fprintf(out, "  Type:                 %s\n", header.Type)
		fmt.Fprintf(out, "  Machine:              %s\n", header.Machine)
		fmt.Fprintf(out, "  Entry point address:  %s\n", header.EntryPoint)
		fmt.Fprintf(out, "  Flags:                %s\n", header.Flags)
		fmt.Fprintln(out)
	}

	if report.Sections != nil {
		fmt.Fprintln(out, "Section Headers:")
		fmt.Fprintf(
			out,
			"  [%2s] %-20s %-16s %-16s %-8s %-8s %-8s %-5s %4s %4s %5s\n",
			"Nr", "Name", "Type", "Address", "Offset", "Size", "EntSize",
			"Flags", "Link", "Info", "Align")
		for _, section := range report.Sections {
			fmt.Fprintf(
				out,
				"  [%2d] %-20s %-16s %-16s %-8s %-8s %-8s %-5s %4d %4d %5d\n",
				section.Index,
				section.Name,
				section.Type,
				section.Address,
				section.Offset,
				section.Size,
				section.EntrySize,
				section.Flags,
				section.Link,
				section.Info,
				section.Alignment)
		}
		fmt.Fprintln(out)
	}

	if report.Segments != nil {
		fmt.Fprintln(out, "Program Headers:")
		fmt.Fprintf(
			out,
			"  %-14s %-10s %-18s %-18s %-10s %-10s %-5s %s\n",
			"Type", "Offset", "VirtAddr", "PhysAddr", "FileSiz", "MemSiz",
			"Flags", "Align")
		for _, segment := range report.Segments {
			fmt.Fprintf(
				out,
				"  %-14s %-10s %-18s %-18s %-10s %-10s %-5s %s\n",
				segment.Type,
				segment.Offset,
				segment.VirtualAddress,
				segment.PhysicalAddress,
				segment.FileSize,
				segment.MemorySize,
				segment.Flags,
				segment.Alignment)
		}
		fmt.Fprintln(out)
	}

	if report.Mapping != nil {
		fmt.Fprintln(out, "Section to Segment mapping:")
		for _, mapping := range report.Mapping {
			fmt.Fprintf(
				out,
				"  %02d     %s\n",
				mapping.Segment,
				strings.Join(mapping.Sections, " "))
		}
		fmt.Fprintln(out)
	}

	writeSymbols(out, ".symtab", report.Symbols)
	writeSymbols(out, ".dynsym", report.DynamicSymbols)

	for _, section := range report.Relocations {
		fmt.Fprintf(
			out,
			"Relocation section '%s' contains %d entries:\n",
			section.Section,
			len(section.Relocations))
		for _, relocation := range section.Relocations {
			addend := ""
			if relocation.Addend != nil {
				addend = fmt.Sprintf("%+d", *relocation.Addend)
			}

			fmt.Fprintf(
				out,
				"  %s %-24s %s %s\n",
				relocation.Offset,
				relocation.Type,
				relocation.Symbol,
				addend)
		}
		fmt.Fprintln(out)
	}

	if report.Dynamic != nil {
		fmt.Fprintf(
			out,
			"Dynamic section contains %d entries:\n",
			len(report.Dynamic))
		for _, entry := range report.Dynamic {
			fmt.Fprintf(out, "  %-20s %s\n", entry.Tag, entry.Value)
		}
		fmt.Fprintln(out)
	}

	if report.Needed != nil {
		fmt.Fprintln(out, "Needed libraries:")
		for _, name := range report.Needed {
			fmt.Fprintf(out, "  %s\n", name)
		}
		fmt.Fprintln(out)
	}

	if report.Strings != nil {
		fmt.Fprintln(out, "Strings:")
		for idx, value := range report.Strings {
			fmt.Fprintf(out, "  [%4d] %s\n", idx, value)
		}
		fmt.Fprintln(out)
	}

	for _, line := range report.Disassembly {
		fmt.Fprintln(out, line)
	}
}

func writeSymbols(out io.Writer, name string, symbols []SymbolReport) {
	if symbols == nil {
		return
	}

	fmt.Fprintf(
		out,
		"Symbol table '%s' contains %d entries:\n",
		name,
		len(symbols))
	fmt.Fprintf(
		out,
		"  %6s: %-16s %5s %-8s %-8s %-9s %4s %s\n",
		"Num", "Value", "Size", "Type", "Bind", "Vis", "Ndx", "Name")
	for _, symbol := range symbols {
		fmt.Fprintf(
			out,
			"  %6d: %s %5d %-8s %-8s %-9s %4s %s\n",
			symbol.Index,
			symbol.Value,
			symbol.Size,
			symbol.Type,
			symbol.Binding,
			symbol.Visibility,
			symbol.Section,
			symbol.Name)
	}
	fmt.Fprintln(out)
}
