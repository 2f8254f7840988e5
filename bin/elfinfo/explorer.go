package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/samber/lo"

	"github.com/pattyshack/elfinfo/disassembler"
)

var errQuit = errors.New("quit")

type command struct {
	name  string
	usage string
	run   func(*explorer, []string) error
}

var commands []command

func init() {
	commands = []command{
		{"header", "header", reportCommand(func(o *reportOptions) { o.header = true })},
		{"sections", "sections", reportCommand(func(o *reportOptions) { o.sections = true })},
		{"segments", "segments", reportCommand(func(o *reportOptions) { o.segments = true })},
		{"mapping", "mapping", reportCommand(func(o *reportOptions) { o.mapping = true })},
		{"symbols", "symbols [substring]", symbolsCommand(false)},
		{"dynsyms", "dynsyms [substring]", symbolsCommand(true)},
		{"relocations", "relocations", reportCommand(func(o *reportOptions) { o.relocations = true })},
		{"dynamic", "dynamic", reportCommand(func(o *reportOptions) { o.dynamic = true })},
		{"needed", "needed", reportCommand(func(o *reportOptions) { o.needed = true })},
		{"process", "process", processCommand},
		{"strings", "strings <section>", stringsCommand},
		{"disassemble", "disassemble <symbol|address> [count]", disassembleCommand},
		{"memory", "memory <address> [size]", memoryCommand},
		{"format", "format <text|yaml>", formatCommand},
		{"demangle", "demangle <on|off>", demangleCommand},
		{"help", "help", helpCommand},
		{"quit", "quit", func(*explorer, []string) error { return errQuit }},
	}
}

type explorer struct {
	src    *source
	config Config
	out    io.Writer
}

func newExplorer(src *source, config Config, out io.Writer) *explorer {
	return &explorer{
		src:    src,
		config: config,
		out:    out,
	}
}

func (exp *explorer) options() reportOptions {
	return reportOptions{
		demangle:         exp.config.Demangle,
		disassembleLimit: exp.config.DisassembleLimit,
	}
}

func (exp *explorer) write(report *Report) error {
	return writeReport(exp.out, exp.config.Format, report)
}

func lookupCommand(name string) (command, error) {
	matches := []command{}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, nil
		}

		if strings.HasPrefix(cmd.name, name) {
			matches = append(matches, cmd)
		}
	}

	switch len(matches) {
	case 0:
		return command{}, fmt.Errorf("invalid command: %s", name)
	case 1:
		return matches[0], nil
	default:
		names := lo.Map(matches, func(cmd command, _ int) string {
			return cmd.name
		})
		sort.Strings(names)
		return command{}, fmt.Errorf(
			"ambiguous command: %s (%s)",
			name,
			strings.Join(names, ", "))
	}
}

// execute runs a single command line.  errQuit is returned on quit.
func (exp *explorer) execute(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("failed to tokenize command: %w", err)
	}

	if len(args) == 0 {
		return nil
	}

	cmd, err := lookupCommand(args[0])
	if err != nil {
		return err
	}

	return cmd.run(exp, args[1:])
}

// run reads commands until EOF, interrupt or quit.  An empty line repeats
// the previous command.
func (exp *explorer) run() error {
	rl, err := readline.New(exp.config.Prompt)
	if err != nil {
		return err
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		err = exp.execute(line)
		if err == errQuit {
			return nil
		} else if err != nil {
			fmt.Fprintln(exp.out, err)
		}
	}
}

func reportCommand(
	set func(*reportOptions),
) func(*explorer, []string) error {
	return func(exp *explorer, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("unexpected arguments: %v", args)
		}

		options := exp.options()
		set(&options)
		return exp.write(buildReport(exp.src, options))
	}
}

func symbolsCommand(dynamic bool) func(*explorer, []string) error {
	return func(exp *explorer, args []string) error {
		if len(args) > 1 {
			return fmt.Errorf("unexpected arguments: %v", args[1:])
		}

		options := exp.options()
		options.symbols = !dynamic
		options.dynamicSymbols = dynamic
		report := buildReport(exp.src, options)

		if len(args) == 1 {
			match := func(symbol SymbolReport, _ int) bool {
				return strings.Contains(symbol.Name, args[0])
			}

			if report.Symbols != nil {
				report.Symbols = lo.Filter(report.Symbols, match)
			}
			if report.DynamicSymbols != nil {
				report.DynamicSymbols = lo.Filter(report.DynamicSymbols, match)
			}
		}

		return exp.write(report)
	}
}

func processCommand(exp *explorer, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}

	if exp.src.pid == 0 {
		return fmt.Errorf("%s is not a running process", exp.src.name)
	}

	process, err := processReport(exp.src)
	if err != nil {
		return err
	}

	return exp.write(&Report{
		Source:  exp.src.name,
		Process: process,
	})
}

func stringsCommand(exp *explorer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: strings <section>")
	}

	values, err := exp.src.file.Strings(args[0])
	if err != nil {
		return err
	}

	return exp.write(&Report{
		Source:  exp.src.name,
		Strings: values,
	})
}

func disassembleCommand(exp *explorer, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: disassemble <symbol|address> [count]")
	}

	limit := exp.config.DisassembleLimit
	if len(args) == 2 {
		val, err := strconv.ParseInt(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("failed to parse instruction count: %w", err)
		}

		if val < 1 {
			return fmt.Errorf("invalid instruction count: %d", val)
		}
		limit = int(val)
	}

	instructions, err := exp.src.disassemble(args[0], limit)
	if err != nil {
		return err
	}

	report := &Report{
		Source: exp.src.name,
		Disassembly: lo.Map(
			instructions,
			func(inst disassembler.Instruction, _ int) string {
				return inst.String()
			}),
	}

	return exp.write(report)
}

func memoryCommand(exp *explorer, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: memory <address> [size]")
	}

	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("failed to parse memory address: %w", err)
	}

	size := uint64(32)
	if len(args) == 2 {
		val, err := strconv.ParseInt(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("failed to parse output size: %w", err)
		}

		if val < 1 {
			return fmt.Errorf("invalid output size: %d", val)
		}
		size = uint64(val)
	}

	out, err := exp.src.readMemory(addr, size)
	if err != nil {
		return fmt.Errorf("failed to read from memory: %w", err)
	}

	for len(out) > 0 {
		line := fmt.Sprintf("0x%016x:", addr)

		chunk := min(len(out), 16)
		for _, b := range out[:chunk] {
			line += fmt.Sprintf(" %02x", b)
		}
		fmt.Fprintln(exp.out, line)

		out = out[chunk:]
		addr += uint64(chunk)
	}

	return nil
}

func formatCommand(exp *explorer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: format <text|yaml>")
	}

	config := exp.config
	config.Format = args[0]

	err := config.Validate()
	if err != nil {
		return err
	}

	exp.config = config
	return nil
}

func demangleCommand(exp *explorer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: demangle <on|off>")
	}

	switch args[0] {
	case "on":
		exp.config.Demangle = true
	case "off":
		exp.config.Demangle = false
	default:
		return fmt.Errorf("usage: demangle <on|off>")
	}

	return nil
}

func helpCommand(exp *explorer, args []string) error {
	for _, cmd := range commands {
		fmt.Fprintf(exp.out, "  %s\n", cmd.usage)
	}
	return nil
}
