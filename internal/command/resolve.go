package command

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/tmsolberg/conductor/internal/config"
	"github.com/tmsolberg/conductor/internal/models"
)

// AutoRuntime is the sentinel a caller may pass instead of a concrete
// runtime identifier. It is resolved exactly once, when the execution
// context is built; no downstream component ever sees it.
const AutoRuntime = "auto"

// autoPreference is the probe order for auto resolution.
var autoPreference = []string{"claude", "codex", "opencode"}

// ResolveRuntime turns a possibly-"auto" runtime name into a concrete,
// registered runtime identifier.
func ResolveRuntime(name string, runtimes map[string]config.RuntimeConfig) (string, error) {
	if name != "" && name != AutoRuntime {
		if _, ok := runtimes[name]; !ok {
			return "", &models.ConfigurationError{
				Missing: "runtime " + name + " is not registered",
				Remedy:  "add it under runtimes in the config file",
			}
		}
		return name, nil
	}

	for _, candidate := range autoPreference {
		rt, ok := runtimes[candidate]
		if !ok {
			continue
		}
		if binaryAvailable(rt) {
			return candidate, nil
		}
	}

	return "", &models.ConfigurationError{
		Missing: "no agent runtime found on this system",
		Remedy:  "install an agent CLI or set one of the CONDUCTOR_*_BIN variables",
	}
}

func binaryAvailable(rt config.RuntimeConfig) bool {
	if rt.OverrideEnv != "" {
		if override := os.Getenv(rt.OverrideEnv); override != "" {
			_, err := os.Stat(override)
			return err == nil
		}
	}
	if filepath.IsAbs(rt.Binary) {
		_, err := os.Stat(rt.Binary)
		return err == nil
	}
	_, err := exec.LookPath(rt.Binary)
	return err == nil
}
