package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/dist"
	"github.com/atlas-lang/atlas/manifest"
	"github.com/atlas-lang/atlas/optimizer"
	"github.com/atlas-lang/atlas/stdlib"
	"github.com/atlas-lang/atlas/validator"
	"github.com/atlas-lang/atlas/vm"
)

var errFindings = errors.New("validation failed")

func newFlagSet(name, usage string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: atlas %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// singleInput parses args and returns the one positional argument.
func singleInput(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%s: expected one input file, got %d", fs.Name(), fs.NArg())
	}
	return fs.Arg(0), nil
}

// handleAsmCommand assembles a listing into a bytecode file.
func handleAsmCommand(args []string, cfg *manifest.Manifest, stdout io.Writer) error {
	fs := newFlagSet("asm", "[-o output] [-O] <file.asm>", stdout)
	output := fs.String("o", "", "Output file (default: input with .atlasc)")
	optimize := fs.Bool("O", cfg.Compiler.Optimize, "Optimize before writing")
	input, err := singleInput(fs, args)
	if err != nil {
		return err
	}

	bc, module, err := loadUnit(input)
	if err != nil {
		return err
	}
	if *optimize {
		var stats optimizer.Stats
		bc, stats = optimizer.Optimize(bc)
		printStats(stdout, stats)
	}
	if *output == "" {
		*output = outputPath(input, ".atlasc")
	}
	if err := dist.WriteFile(*output, bc, module); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (%d bytes of code, %d constants)\n", *output, bc.Len(), len(bc.Constants))
	return nil
}

// handleDisCommand prints a disassembly listing.
func handleDisCommand(args []string, _ *manifest.Manifest, stdout io.Writer) error {
	fs := newFlagSet("dis", "<file>", stdout)
	input, err := singleInput(fs, args)
	if err != nil {
		return err
	}
	bc, _, err := loadUnit(input)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, bytecode.Disassemble(bc))
	return nil
}

// handleValidateCommand prints validator findings. Any finding fails the
// command.
func handleValidateCommand(args []string, _ *manifest.Manifest, stdout io.Writer) error {
	fs := newFlagSet("validate", "<file>", stdout)
	input, err := singleInput(fs, args)
	if err != nil {
		return err
	}
	bc, _, err := loadUnit(input)
	if err != nil {
		return err
	}

	findings := validator.Validate(bc)
	for _, f := range findings {
		fmt.Fprintln(stdout, f)
	}
	if len(findings) > 0 {
		return fmt.Errorf("%s: %w: %d finding(s)", input, errFindings, len(findings))
	}
	fmt.Fprintf(stdout, "%s: ok\n", input)
	return nil
}

// handleOptCommand optimizes a unit and writes the result.
func handleOptCommand(args []string, _ *manifest.Manifest, stdout io.Writer) error {
	fs := newFlagSet("opt", "[-o output] <file>", stdout)
	output := fs.String("o", "", "Output file (default: input with .opt.atlasc)")
	input, err := singleInput(fs, args)
	if err != nil {
		return err
	}

	bc, module, err := loadUnit(input)
	if err != nil {
		return err
	}
	optimized, stats := optimizer.Optimize(bc)
	printStats(stdout, stats)

	if *output == "" {
		*output = outputPath(input, ".opt.atlasc")
	}
	return dist.WriteFile(*output, optimized, module)
}

// handleRunCommand executes a unit with the natives and limits of the
// configuration and prints the result.
func handleRunCommand(args []string, cfg *manifest.Manifest, stdout io.Writer) error {
	fs := newFlagSet("run", "[-profile] [-limit n] <file>", stdout)
	profile := fs.Bool("profile", false, "Print profiling statistics after the run")
	limit := fs.Int64("limit", cfg.VM.MaxInstructions, "Instruction budget (0 means unlimited)")
	input, err := singleInput(fs, args)
	if err != nil {
		return err
	}

	bc, module, err := loadUnit(input)
	if err != nil {
		return err
	}
	opts, err := cfg.VMOptions()
	if err != nil {
		return err
	}
	policy := cfg.SecurityContext()
	log.Infof("capabilities: allow %v, deny %v", allowList(policy.Allowed()), policy.Denied())
	natives := stdlib.New(stdlib.WithStdout(stdout))
	opts = append(opts,
		vm.WithNatives(natives),
		vm.WithMaxInstructions(uint64(max(*limit, 0))))

	var profiler *vm.Profiler
	if *profile {
		profiler = vm.NewProfiler()
		opts = append(opts, vm.WithProfiler(profiler))
	}

	machine := vm.New(bc, opts...)
	log.Infof("running %s on vm %s", module, machine.ID())
	result, ok, err := machine.Run()
	if profiler != nil {
		printProfile(stdout, profiler)
	}
	if err != nil {
		var rerr *vm.RuntimeError
		if errors.As(err, &rerr) && len(rerr.Trace) > 0 {
			return fmt.Errorf("%w\n%s", err, rerr.FormatTrace())
		}
		return err
	}
	if ok {
		fmt.Fprintln(stdout, result)
	}
	return nil
}

func printStats(w io.Writer, s optimizer.Stats) {
	fmt.Fprintf(w, "instructions: %d -> %d\n", s.InstructionsBefore, s.InstructionsAfter)
	fmt.Fprintf(w, "bytes:        %d -> %d\n", s.BytesBefore, s.BytesAfter)
	fmt.Fprintf(w, "folded %d, removed %d, rewritten %d\n",
		s.ConstantsFolded, s.InstructionsRemoved, s.PeepholeRewrites)
}

func printProfile(w io.Writer, p *vm.Profiler) {
	s := p.Stats()
	fmt.Fprintf(w, "--- profile: %d instructions, %d calls, %d native calls\n",
		s.Instructions, s.Calls, s.NativeCalls)
	for _, fn := range p.TopFunctions(5) {
		mark := ""
		if p.IsHot(fn) {
			mark = " (hot)"
		}
		fmt.Fprintf(w, "  %-16s %d%s\n", fn.Name, p.Profile(fn).Calls(), mark)
	}
}

func allowList(allowed []string) any {
	if allowed == nil {
		return "all"
	}
	return allowed
}
