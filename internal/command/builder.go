// Package command resolves agent CLI binaries and assembles their
// argument vectors for a given runtime and step.
package command

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tmsolberg/conductor/internal/config"
	"github.com/tmsolberg/conductor/internal/models"
)

const workspacePlaceholder = "{workspace}"

// flagSpec maps an allow-listed option key to its CLI flag.
type flagSpec struct {
	key  string
	flag string
}

// flagAllowlist is the full set of step/workflow options that may be
// forwarded to a runtime, in stable order. Runtimes drop unsupported
// flags via their denylist.
var flagAllowlist = []flagSpec{
	{key: "model", flag: "--model"},
	{key: "max-turns", flag: "--max-turns"},
	{key: "effort", flag: "--effort"},
	{key: "continue", flag: "--continue"},
}

// Invocation is a fully resolved agent process launch.
type Invocation struct {
	Binary string
	Args   []string
	Env    map[string]string
}

// Builder assembles agent CLI invocations from an explicit runtime
// registry. It holds no process-wide mutable state.
type Builder struct {
	runtimes map[string]config.RuntimeConfig
}

// NewBuilder creates a Builder over the given runtime registry.
func NewBuilder(runtimes map[string]config.RuntimeConfig) *Builder {
	return &Builder{runtimes: runtimes}
}

// Build resolves the binary and assembles the argument vector for one
// process invocation. It is a pure transformation over validated
// inputs; all failures surface before any process is spawned.
func (b *Builder) Build(runtime, prompt string, opts map[string]any, workspace string) (*Invocation, error) {
	rt, ok := b.runtimes[runtime]
	if !ok {
		return nil, &models.ConfigurationError{
			Missing: fmt.Sprintf("runtime %q is not registered", runtime),
			Remedy:  "add it under runtimes in the config file",
		}
	}

	binary, err := resolveBinary(runtime, rt)
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(rt.PrefixArgs)+2*len(flagAllowlist)+2)
	for _, arg := range rt.PrefixArgs {
		args = append(args, strings.ReplaceAll(arg, workspacePlaceholder, workspace))
	}
	args = append(args, optionFlags(opts, rt.FlagDenylist)...)

	if rt.PromptFlag != "" {
		args = append(args, rt.PromptFlag, prompt)
	} else {
		args = append(args, prompt)
	}

	return &Invocation{Binary: binary, Args: args, Env: map[string]string{}}, nil
}

// resolveBinary resolves the runtime executable: explicit env override,
// then the registry default, then a system PATH lookup.
func resolveBinary(runtime string, rt config.RuntimeConfig) (string, error) {
	if rt.OverrideEnv != "" {
		if override := os.Getenv(rt.OverrideEnv); override != "" {
			if _, err := os.Stat(override); err != nil {
				return "", &models.ConfigurationError{
					Missing: fmt.Sprintf("%s points to %q which does not exist", rt.OverrideEnv, override),
					Remedy:  fmt.Sprintf("fix or unset %s", rt.OverrideEnv),
				}
			}
			return override, nil
		}
	}

	if filepath.IsAbs(rt.Binary) {
		if _, err := os.Stat(rt.Binary); err != nil {
			return "", &models.ConfigurationError{
				Missing: fmt.Sprintf("%s binary %q does not exist", runtime, rt.Binary),
				Remedy:  fmt.Sprintf("set %s to the correct path", rt.OverrideEnv),
			}
		}
		return rt.Binary, nil
	}

	path, err := exec.LookPath(rt.Binary)
	if err != nil {
		return "", &models.ConfigurationError{
			Missing: fmt.Sprintf("%s binary %q not found in PATH", runtime, rt.Binary),
			Remedy:  fmt.Sprintf("install it or set %s", rt.OverrideEnv),
		}
	}
	return path, nil
}

// optionFlags maps allow-listed options to flags. Booleans become bare
// flags when true; scalars become --name value pairs. Flags on the
// runtime denylist are dropped.
func optionFlags(opts map[string]any, denylist []string) []string {
	if len(opts) == 0 {
		return nil
	}

	denied := make(map[string]struct{}, len(denylist))
	for _, flag := range denylist {
		denied[flag] = struct{}{}
	}

	args := make([]string, 0, 2*len(opts))
	for _, spec := range flagAllowlist {
		value, ok := opts[spec.key]
		if !ok {
			continue
		}
		if _, drop := denied[spec.flag]; drop {
			continue
		}
		switch v := value.(type) {
		case bool:
			if v {
				args = append(args, spec.flag)
			}
		case string:
			if v != "" {
				args = append(args, spec.flag, v)
			}
		case int:
			args = append(args, spec.flag, fmt.Sprintf("%d", v))
		default:
			args = append(args, spec.flag, fmt.Sprintf("%v", v))
		}
	}
	return args
}
