// Command ember is the CLI front end for the ember scripting language: run
// a source or compiled file, compile source ahead of time, disassemble a
// compiled unit, or drop into an interactive REPL.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/exp/slices"

	"github.com/emberlang/ember/pkg/api"
	"github.com/emberlang/ember/pkg/bytecode"
	"github.com/emberlang/ember/pkg/bytefmt"
	"github.com/emberlang/ember/pkg/module"
	"github.com/emberlang/ember/pkg/value"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("ember version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "compile":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: ember compile <input.jst> [output.jsb]")
			os.Exit(1)
		}
		out := ""
		if len(os.Args) >= 4 {
			out = os.Args[3]
		}
		compileFile(os.Args[2], out)
	case "disassemble", "disasm":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: ember disassemble <file.jsb>")
			os.Exit(1)
		}
		disassembleFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("ember - a dynamically-typed, class-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  ember                          Start interactive REPL")
	fmt.Println("  ember [file]                   Run a .jst or .jsb file")
	fmt.Println("  ember run [file]               Run a .jst or .jsb file")
	fmt.Println("  ember compile <in> [out]       Compile .jst to .jsb bytecode")
	fmt.Println("  ember disassemble <file>       Disassemble a .jsb bytecode file")
	fmt.Println("  ember repl                     Start interactive REPL")
	fmt.Println("  ember version                  Show version")
	fmt.Println("  ember help                     Show this help")
	fmt.Println("\nFile extensions:")
	fmt.Println("  .jst   Source code files (text)")
	fmt.Println("  .jsb   Compiled bytecode files (binary)")
}

// runFile runs a .jst source file or a .jsb compiled bytecode file,
// detected by extension, the same dual-path split the teacher's runFile
// made between re-parsing source and loading pre-serialized bytecode
// directly. A sibling-directory FileLoader is installed so `import` works
// against files living next to the one being run.
func runFile(filename string) {
	a := api.NewDefault()
	a.SetLoader(module.FileLoader(filepath.Dir(filename)))

	var result value.Value
	var err error
	if filepath.Ext(filename) == ".jsb" {
		result, err = runBytecodeFile(a, filename)
	} else {
		result, err = runSourceFile(a, filename)
	}
	if err != nil {
		reportRunError(err)
		os.Exit(1)
	}
	if !result.IsNull() {
		fmt.Println(formatValue(result))
	}
}

func runSourceFile(a *api.VM, filename string) (value.Value, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return value.NullValue, fmt.Errorf("reading file: %w", err)
	}
	return a.Run(string(data))
}

func runBytecodeFile(a *api.VM, filename string) (value.Value, error) {
	f, err := os.Open(filename)
	if err != nil {
		return value.NullValue, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	fn, err := bytefmt.Decode(f)
	if err != nil {
		return value.NullValue, fmt.Errorf("loading bytecode: %w", err)
	}
	return a.RunFunction(fn)
}

func reportRunError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// compileFile compiles a .jst source file to a .jsb bytecode file, so a
// deployed script tree can ship precompiled units and skip the parse/
// compile step at startup.
func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".jst" {
			outputFile = inputFile[:len(inputFile)-len(".jst")] + ".jsb"
		} else {
			outputFile = inputFile + ".jsb"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	a := api.NewDefault()
	fn, err := a.Compile(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := bytefmt.Encode(fn, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

// disassembleFile prints a human-readable view of a .jsb file's constant
// pool and instruction stream, recursing into any nested Function
// constants (closures, methods) the same way the file format nests them.
func disassembleFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fn, err := bytefmt.Decode(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Bytecode Disassembly: %s ===\n\n", filename)
	disassembleFunction(fn, "")
}

func disassembleFunction(fn *value.Function, indent string) {
	fmt.Printf("%sFunction %s (arity=%d variadic=%t)\n", indent, fnName(fn), fn.Arity, fn.Variadic)

	fmt.Printf("%sConstants:\n", indent)
	if len(fn.Constants) == 0 {
		fmt.Printf("%s  (empty)\n", indent)
	}
	for i, c := range fn.Constants {
		fmt.Printf("%s  [%d] %s\n", indent, i, formatConstant(c))
	}

	listing := bytecode.Disassemble(fn.Chunk, fnName(fn))
	for _, line := range strings.Split(strings.TrimRight(listing, "\n"), "\n") {
		fmt.Printf("%s%s\n", indent, line)
	}

	for i, c := range fn.Constants {
		if nested, ok := value.AsFunction(c); ok {
			fmt.Printf("\n%s--- nested function [%d] ---\n", indent, i)
			disassembleFunction(nested, indent+"  ")
		}
	}
	fmt.Println()
}

func fnName(fn *value.Function) string {
	if fn.Name == "" {
		return "<anonymous>"
	}
	return fn.Name
}

func formatConstant(c value.Value) string {
	switch {
	case c.IsNumber():
		return fmt.Sprintf("number: %g", c.AsNumber())
	case c.IsBool():
		return fmt.Sprintf("bool: %t", c.AsBool())
	case c.IsNull():
		return "null"
	default:
		if s, ok := value.AsString(c); ok {
			return fmt.Sprintf("string: %q", string(s.Bytes))
		}
		if nested, ok := value.AsFunction(c); ok {
			return fmt.Sprintf("function: %s (%d instructions, %d constants)",
				fnName(nested), len(nested.Chunk.Code), len(nested.Constants))
		}
		return fmt.Sprintf("unknown: %v", c.Kind())
	}
}

// formatValue renders a result Value for REPL/run-command output. It has
// no ember-level __str__ dunder dispatch (that needs a running VM to call
// into script code); it is a host-side pretty-printer only, deliberately
// simpler than a full ember-level string conversion.
func formatValue(v value.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return fmt.Sprintf("%t", v.AsBool())
	case v.IsNumber():
		return fmt.Sprintf("%g", v.AsNumber())
	case v.IsHandle():
		return fmt.Sprintf("<handle %#x>", v.AsHandle())
	case v.IsObj():
		return formatObject(v)
	default:
		return "<unknown>"
	}
}

func formatObject(v value.Value) string {
	if s, ok := value.AsString(v); ok {
		return string(s.Bytes)
	}
	switch o := v.AsObject().(type) {
	case *value.List:
		parts := make([]string, len(o.Items))
		for i, item := range o.Items {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *value.Tuple:
		parts := make([]string, len(o.Items))
		for i, item := range o.Items {
			parts[i] = formatValue(item)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *value.Instance:
		return fmt.Sprintf("<%s instance>", o.Class.Name)
	case *value.Class:
		return fmt.Sprintf("<class %s>", o.Name)
	case *value.Closure:
		return fmt.Sprintf("<function %s>", fnName(o.Fn))
	case *value.Native:
		return fmt.Sprintf("<native %s>", o.Name)
	case *value.Module:
		return fmt.Sprintf("<module %s>", o.Name)
	case *value.Table:
		return fmt.Sprintf("<table %d entries>", o.Table.Len())
	default:
		return fmt.Sprintf("<%T>", o)
	}
}

// runREPL starts an interactive read-eval-print loop with a persistent
// api.VM, so a `var` declared on one line is visible as a global on the
// next. The prompt is only printed when stdout is a terminal, matching
// the teacher's bare-prompt REPL adapted so piping ember's REPL doesn't
// interleave prompt text with script output.
func runREPL() {
	interactive := isatty.IsTerminal(os.Stdout.Fd())
	if interactive {
		fmt.Printf("ember REPL v%s\n", version)
		fmt.Println("Type :help for help, :quit or :exit to exit")
		fmt.Println()
	}

	a := api.NewDefault()
	a.SetLoader(module.FileLoader("."))
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if interactive {
			fmt.Print("ember> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == ":quit" || line == ":exit":
			if interactive {
				fmt.Println("Goodbye!")
			}
			return
		case line == ":help":
			printREPLHelp()
			continue
		case line == ":globals":
			printGlobals(a)
			continue
		case line == ":gc":
			printGCStats(a)
			continue
		case strings.HasPrefix(line, ":class "):
			printClass(a, strings.TrimSpace(line[len(":class "):]))
			continue
		case line == "":
			continue
		}
		evalREPL(a, line)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}

func evalREPL(a *api.VM, input string) {
	result, err := a.Run(input)
	if err != nil {
		reportRunError(err)
		return
	}
	if !result.IsNull() {
		fmt.Println(formatValue(result))
	}
}

// printGlobals lists the REPL session's top-level names, already sorted by
// api.VM.GlobalNames; re-sorted here with slices.Sort anyway so a future
// caller that appends extra names (e.g. host-registered natives merged in
// separately) before printing gets a correct merged order for free.
func printGlobals(a *api.VM) {
	names := a.GlobalNames()
	slices.Sort(names)
	if len(names) == 0 {
		fmt.Println("(no globals defined)")
		return
	}
	for _, n := range names {
		fmt.Println(" ", n)
	}
}

// printClass prints name's method set, walking the superclass chain and
// merging each level's own methods into one deduplicated, sorted listing
// via slices.Sort/slices.Compact, since a subclass re-declaring an
// inherited selector would otherwise show up twice.
func printClass(a *api.VM, name string) {
	g, ok := a.GetGlobal(name)
	if !ok {
		fmt.Printf("no such global: %s\n", name)
		return
	}
	cls, ok := value.AsClass(g)
	if !ok {
		fmt.Printf("%s is not a class\n", name)
		return
	}

	var chain []string
	var methods []string
	for c := cls; c != nil; c = c.Super {
		chain = append(chain, c.Name)
		methods = append(methods, c.Methods.Keys()...)
	}
	slices.Sort(methods)
	methods = slices.Compact(methods)

	fmt.Printf("class %s\n", strings.Join(chain, " < "))
	if len(methods) == 0 {
		fmt.Println("  (no methods)")
		return
	}
	for _, m := range methods {
		fmt.Println(" ", m)
	}
}

// printGCStats forces a collection and reports its result, for a REPL
// session poking at memory behavior interactively.
func printGCStats(a *api.VM) {
	stats := a.CollectGarbage()
	fmt.Println(stats)
}

func printREPLHelp() {
	fmt.Println("ember REPL help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help        Show this help message")
	fmt.Println("  :globals     List top-level names bound so far")
	fmt.Println("  :class NAME  List NAME's methods, including inherited ones")
	fmt.Println("  :gc          Force a collection and print its stats")
	fmt.Println("  :quit        Exit the REPL")
	fmt.Println("  :exit        Exit the REPL")
	fmt.Println()
	fmt.Println("Enter one ember statement per line; declared vars and")
	fmt.Println("functions persist across lines in the same session.")
	fmt.Println()
	fmt.Println("  ember> var x = 42;")
	fmt.Println("  ember> return x + 8;")
	fmt.Println("  50")
}
