// Package manifest handles atlas.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"github.com/atlas-lang/atlas/security"
	"github.com/atlas-lang/atlas/vm"
)

// FileName is the manifest file looked up in project directories.
const FileName = "atlas.toml"

// Manifest represents an atlas.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Compiler CompilerConfig `toml:"compiler"`
	VM       VMConfig       `toml:"vm"`
	Security SecurityConfig `toml:"security"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the atlas.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// CompilerConfig configures the tools that produce bytecode.
type CompilerConfig struct {
	Optimize bool `toml:"optimize"` // optimize units written by asm
}

// VMConfig configures execution limits and validation.
type VMConfig struct {
	MaxInstructions int64  `toml:"max-instructions"` // 0 means unlimited
	MaxFrames       int    `toml:"max-frames"`
	MaxStack        int    `toml:"max-stack"`
	Validation      string `toml:"validation"` // "off", "advisory" or "strict"
}

// SecurityConfig lists the capabilities granted to natives.
type SecurityConfig struct {
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no atlas.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.setDefaults()
	return m
}

func (m *Manifest) setDefaults() {
	if m.VM.MaxFrames == 0 {
		m.VM.MaxFrames = vm.DefaultMaxFrames
	}
	if m.VM.MaxStack == 0 {
		m.VM.MaxStack = vm.DefaultMaxStack
	}
	if m.VM.Validation == "" {
		m.VM.Validation = vm.ValidationAdvisory.String()
	}
	if m.Security.Allow == nil {
		m.Security.Allow = []string{security.Stdout}
	}
}

// Parse decodes manifest text. Unknown keys are an error so that typos do
// not silently fall back to defaults.
func Parse(data string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(data, &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	m.setDefaults()
	if err := m.Check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load parses the atlas.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an atlas.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ApplyEnv overrides settings from ATLAS_* environment variables:
//
//	ATLAS_OPTIMIZE,
//	ATLAS_MAX_INSTRUCTIONS, ATLAS_MAX_FRAMES, ATLAS_MAX_STACK, ATLAS_VALIDATION,
//	ATLAS_ALLOW, ATLAS_DENY (comma separated),
//	ATLAS_LOG_VERBOSITY, ATLAS_LOG_FILE
func (m *Manifest) ApplyEnv() error {
	if env.Has("ATLAS_OPTIMIZE") {
		m.Compiler.Optimize = env.Bool("ATLAS_OPTIMIZE")
	}

	m.VM.MaxInstructions = env.Int64("ATLAS_MAX_INSTRUCTIONS", m.VM.MaxInstructions)
	m.VM.MaxFrames = env.Int("ATLAS_MAX_FRAMES", m.VM.MaxFrames)
	m.VM.MaxStack = env.Int("ATLAS_MAX_STACK", m.VM.MaxStack)
	m.VM.Validation = env.Str("ATLAS_VALIDATION", m.VM.Validation)

	if env.Has("ATLAS_ALLOW") {
		m.Security.Allow = splitList(env.Str("ATLAS_ALLOW"))
	}
	if env.Has("ATLAS_DENY") {
		m.Security.Deny = splitList(env.Str("ATLAS_DENY"))
	}

	m.Log.Verbosity = env.Int("ATLAS_LOG_VERBOSITY", m.Log.Verbosity)
	m.Log.File = env.Str("ATLAS_LOG_FILE", m.Log.File)
	return m.Check()
}

func splitList(s string) []string {
	list := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// Check validates settings that the toml decoder cannot.
func (m *Manifest) Check() error {
	var errs []error
	if _, err := vm.ParseValidationPolicy(m.VM.Validation); err != nil {
		errs = append(errs, err)
	}
	if m.VM.MaxInstructions < 0 {
		errs = append(errs, fmt.Errorf("max-instructions must not be negative, got %d", m.VM.MaxInstructions))
	}
	if m.VM.MaxFrames < 0 || m.VM.MaxStack < 0 {
		errs = append(errs, fmt.Errorf("max-frames and max-stack must not be negative"))
	}
	return errors.Join(errs...)
}

// SecurityContext builds the capability policy of the [security] section.
func (m *Manifest) SecurityContext() *security.Context {
	ctx := security.Restricted(m.Security.Allow...)
	ctx.Deny(m.Security.Deny...)
	return ctx
}

// VMOptions translates the [vm] and [security] sections.
func (m *Manifest) VMOptions() ([]vm.Option, error) {
	policy, err := vm.ParseValidationPolicy(m.VM.Validation)
	if err != nil {
		return nil, err
	}
	return []vm.Option{
		vm.WithMaxInstructions(uint64(max(m.VM.MaxInstructions, 0))),
		vm.WithMaxFrames(m.VM.MaxFrames),
		vm.WithMaxStack(m.VM.MaxStack),
		vm.WithValidation(policy),
		vm.WithSecurity(m.SecurityContext()),
	}, nil
}
