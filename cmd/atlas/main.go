// Atlas CLI - assembles, inspects, optimizes and runs Atlas bytecode
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/dist"
	"github.com/atlas-lang/atlas/manifest"
)

var log = commonlog.GetLogger("atlas.cli")

type command struct {
	name    string
	summary string
	run     func(args []string, cfg *manifest.Manifest, stdout io.Writer) error
}

var commands = []command{
	{"asm", "assemble a listing into a bytecode file", handleAsmCommand},
	{"dis", "disassemble a bytecode file", handleDisCommand},
	{"validate", "report validator findings", handleValidateCommand},
	{"opt", "optimize a bytecode file", handleOptCommand},
	{"run", "execute a bytecode file or listing", handleRunCommand},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: atlas [options] <command> [arguments]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nInputs ending in .asm are assembled on the fly; anything else is read as a\n")
	fmt.Fprintf(os.Stderr, "bytecode file. Settings come from the nearest %s and ATLAS_* variables.\n", manifest.FileName)
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  atlas asm -o fib.atlasc fib.asm\n")
	fmt.Fprintf(os.Stderr, "  atlas opt -o fib.opt.atlasc fib.atlasc\n")
	fmt.Fprintf(os.Stderr, "  atlas run -profile fib.opt.atlasc\n")
}

func main() {
	verbose := flag.Int("v", -1, "Log verbosity (overrides [log] verbosity)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose >= 0 {
		cfg.Log.Verbosity = *verbose
	}
	configureLogging(cfg.Log)
	if cfg.Dir != "" {
		log.Infof("project %s %s in %s", cfg.Project.Name, cfg.Project.Version, cfg.Dir)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name == name {
			if err := c.run(args, cfg, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// loadConfig finds the project manifest above dir, falling back to the
// defaults, and applies environment overrides.
func loadConfig(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return m, nil
}

func configureLogging(cfg manifest.LogConfig) {
	var path *string
	if cfg.File != "" {
		path = &cfg.File
	}
	commonlog.Configure(cfg.Verbosity, path)
}

// loadUnit reads a bytecode file, or assembles a listing when the path ends
// in .asm. The module name comes from the chunk or the file name.
func loadUnit(path string) (*bytecode.Bytecode, string, error) {
	module := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if filepath.Ext(path) == ".asm" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, "", err
		}
		bc, err := bytecode.Assemble(string(src))
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		log.Debugf("assembled %s: %d bytes", path, bc.Len())
		return bc, module, nil
	}

	bc, chunk, err := dist.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	if chunk.Module != "" {
		module = chunk.Module
	}
	log.Debugf("loaded %s: module %s, hash %x", path, module, chunk.Hash[:8])
	return bc, module, nil
}

// outputPath derives the default output of asm and opt.
func outputPath(input, suffix string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + suffix
}
