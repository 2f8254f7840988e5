package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/samber/lo"

	"github.com/pattyshack/elfinfo/disassembler"
	"github.com/pattyshack/elfinfo/elf"
	"github.com/pattyshack/elfinfo/elf/parsed"
	"github.com/pattyshack/elfinfo/procfs"
)

// source is an elf file together with its loaded image.  For files, the
// image is the file's loadable segments mapped at their link time
// addresses.  For processes, the image is the process' memory.
type source struct {
	name string
	pid  int // 0 when the source is a file

	file *parsed.File

	image    elf.Image
	imageErr error
}

func openFile(path string) (*source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return newFileSource(path, content)
}

func newFileSource(name string, content []byte) (*source, error) {
	file, err := parsed.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	image, err := elf.LoadSegments(file.Raw(), 0)
	if err != nil {
		glog.Warningf("failed to load %s's segments: %v", name, err)
	}

	return &source{
		name:     name,
		file:     file,
		image:    image,
		imageErr: err,
	}, nil
}

func openProcess(pid int, readBufferSize int) (*source, error) {
	process, err := procfs.OpenProcessImage(pid, readBufferSize)
	if err != nil {
		return nil, err
	}

	file, err := parsed.NewFile(process.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse process %d's executable: %w", pid, err)
	}

	return &source{
		name:  procfs.GetExecutableSymlinkPath(pid),
		pid:   pid,
		file:  file,
		image: process.Image,
	}, nil
}

func (src *source) loadedImage() (elf.Image, error) {
	if src.imageErr != nil {
		return elf.Image{}, src.imageErr
	}

	return src.image, nil
}

// relocations returns the relocation sections of a file, or the
// relocations reachable through the dynamic segment of a live process.
func (src *source) relocations() ([]parsed.RelocationSection, error) {
	if src.pid == 0 {
		return src.file.RelocationSections()
	}

	relocations, err := src.file.LoadedRelocations(src.image)
	if err != nil {
		return nil, err
	}

	return []parsed.RelocationSection{
		{
			Section: parsed.Section{
				Name: "<dynamic>",
			},
			Relocations: relocations,
		},
	}, nil
}

// findSymbol searches .symtab then .dynsym for a symbol with the given
// (raw or demangled) name.
func (src *source) findSymbol(name string) (parsed.Symbol, error) {
	for _, sectionType := range []parsed.SectionType{
		parsed.SectionSymbolTable,
		parsed.SectionDynamicSymbolTable,
	} {
		symbols, err := src.file.Symbols(sectionType)
		if err != nil {
			glog.V(1).Infof("skipping %s: %v", sectionType, err)
			continue
		}

		symbol, ok := lo.Find(symbols, func(symbol parsed.Symbol) bool {
			return symbol.Name == name || symbol.DemangledName() == name
		})
		if ok {
			return symbol, nil
		}
	}

	return parsed.Symbol{}, fmt.Errorf("symbol %s not found", name)
}

// disassemble decodes the named function symbol, or up to limit
// instructions at target when target is an address.
func (src *source) disassemble(
	target string,
	limit int,
) (
	[]disassembler.Instruction,
	error,
) {
	image, err := src.loadedImage()
	if err != nil {
		return nil, err
	}

	dis, err := disassembler.New(src.file.Machine, image)
	if err != nil {
		return nil, err
	}

	address, err := strconv.ParseUint(target, 0, 64)
	if err == nil {
		return dis.Disassemble(address, limit)
	}

	symbol, err := src.findSymbol(target)
	if err != nil {
		return nil, err
	}

	return dis.DisassembleSymbol(symbol)
}

// readMemory reads size bytes at a link time virtual address.
func (src *source) readMemory(address uint64, size uint64) ([]byte, error) {
	image, err := src.loadedImage()
	if err != nil {
		return nil, err
	}

	return image.Bytes(address, size)
}
