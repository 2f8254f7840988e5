package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/pflag"
)

func main() {
	options := reportOptions{}

	all := false
	pflag.BoolVarP(&all, "all", "a", false, "equivalent to -h -l -S -s -r -d --mapping --needed --dyn-syms --process")
	pflag.BoolVarP(&options.header, "file-header", "h", false, "display the elf file header")
	pflag.BoolVarP(&options.segments, "segments", "l", false, "display the program headers")
	pflag.BoolVarP(&options.sections, "sections", "S", false, "display the section headers")
	pflag.BoolVarP(&options.symbols, "symbols", "s", false, "display the symbol table")
	pflag.BoolVar(&options.dynamicSymbols, "dyn-syms", false, "display the dynamic symbol table")
	pflag.BoolVarP(&options.relocations, "relocs", "r", false, "display the relocations")
	pflag.BoolVarP(&options.dynamic, "dynamic", "d", false, "display the dynamic section")
	pflag.BoolVar(&options.mapping, "mapping", false, "display the section to segment mapping")
	pflag.BoolVar(&options.needed, "needed", false, "display the needed libraries")
	pflag.BoolVar(&options.process, "process", false, "display the process state and image mapping (with --pid)")
	pflag.StringVar(&options.strings, "strings", "", "dump the strings of the named string table section")
	pflag.StringVar(&options.disassemble, "disassemble", "", "disassemble the named function symbol or address")

	pid := 0
	pflag.IntVarP(&pid, "pid", "p", 0, "inspect a running process' executable and memory")

	configPath := ""
	pflag.StringVar(&configPath, "config", "", "yaml config file")

	format := ""
	pflag.StringVar(&format, "format", "", "output format: text or yaml")

	demangle := ""
	pflag.StringVar(&demangle, "demangle", "", "demangle symbol names: on or off")

	interactive := false
	pflag.BoolVarP(&interactive, "interactive", "i", false, "start the interactive explorer")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "USAGE: elfinfo [flags] <file>")
		fmt.Fprintln(os.Stderr, "       elfinfo [flags] --pid <pid>")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	// glog checks that the go flag set was parsed.
	_ = flag.CommandLine.Parse(nil)
	defer glog.Flush()

	config := DefaultConfig()
	if configPath != "" {
		var err error
		config, err = LoadConfig(configPath)
		if err != nil {
			glog.Exitf("%v", err)
		}
	}

	if format != "" {
		config.Format = format
	}

	switch demangle {
	case "":
	case "on":
		config.Demangle = true
	case "off":
		config.Demangle = false
	default:
		glog.Exitf("invalid --demangle value: %q", demangle)
	}

	err := config.Validate()
	if err != nil {
		glog.Exitf("%v", err)
	}

	options.demangle = config.Demangle
	options.disassembleLimit = config.DisassembleLimit
	if all {
		options.setAll()
	}

	args := pflag.Args()

	var src *source
	if pid != 0 {
		if len(args) != 0 {
			glog.Exitf("unexpected arguments: %v", args)
		}

		src, err = openProcess(pid, config.ReadBufferSize)
	} else if len(args) != 1 {
		pflag.Usage()
		os.Exit(1)
	} else {
		src, err = openFile(args[0])
	}

	if err != nil {
		glog.Exitf("%v", err)
	}

	glog.V(1).Infof(
		"loaded %s (%d sections, %d segments)",
		src.name,
		len(src.file.Sections),
		len(src.file.Segments))

	if interactive {
		err = newExplorer(src, config, os.Stdout).run()
		if err != nil {
			glog.Exitf("%v", err)
		}
		return
	}

	err = writeReport(os.Stdout, config.Format, buildReport(src, options))
	if err != nil {
		glog.Exitf("failed to write report: %v", err)
	}
}
