package command

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tmsolberg/conductor/internal/config"
	"github.com/tmsolberg/conductor/internal/models"
)

// fakeBinary writes an executable file and returns its path.
func fakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestBuildAssemblesArgs(t *testing.T) {
	dir := t.TempDir()
	binary := fakeBinary(t, dir, "claude")

	builder := NewBuilder(map[string]config.RuntimeConfig{
		"claude": {
			Binary:     binary,
			PrefixArgs: []string{"--output-format", "stream-json", "--add-dir", "{workspace}"},
			PromptFlag: "-p",
		},
	})

	inv, err := builder.Build("claude", "do the thing", map[string]any{"model": "opus"}, "/work/repo")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if inv.Binary != binary {
		t.Fatalf("expected binary %q, got %q", binary, inv.Binary)
	}
	want := []string{"--output-format", "stream-json", "--add-dir", "/work/repo", "--model", "opus", "-p", "do the thing"}
	if len(inv.Args) != len(want) {
		t.Fatalf("expected args %v, got %v", want, inv.Args)
	}
	for i := range want {
		if inv.Args[i] != want[i] {
			t.Fatalf("arg %d: expected %q, got %q", i, want[i], inv.Args[i])
		}
	}
}

func TestBuildAppendsPromptWithoutFlag(t *testing.T) {
	dir := t.TempDir()
	binary := fakeBinary(t, dir, "codex")

	builder := NewBuilder(map[string]config.RuntimeConfig{
		"codex": {
			Binary:     binary,
			PrefixArgs: []string{"exec", "--json"},
		},
	})

	inv, err := builder.Build("codex", "fix the bug", nil, "/work/repo")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if inv.Args[len(inv.Args)-1] != "fix the bug" {
		t.Fatalf("expected prompt as last arg, got %v", inv.Args)
	}
}

func TestBuildDropsDenylistedFlags(t *testing.T) {
	dir := t.TempDir()
	binary := fakeBinary(t, dir, "codex")

	builder := NewBuilder(map[string]config.RuntimeConfig{
		"codex": {
			Binary:       binary,
			FlagDenylist: []string{"--max-turns"},
		},
	})

	inv, err := builder.Build("codex", "go", map[string]any{"model": "o3", "max-turns": 12}, "/w")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, arg := range inv.Args {
		if arg == "--max-turns" {
			t.Fatalf("denylisted flag leaked into args: %v", inv.Args)
		}
	}
	found := false
	for _, arg := range inv.Args {
		if arg == "--model" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --model in args: %v", inv.Args)
	}
}

func TestBuildBoolOptionBecomesBareFlag(t *testing.T) {
	dir := t.TempDir()
	binary := fakeBinary(t, dir, "claude")

	builder := NewBuilder(map[string]config.RuntimeConfig{
		"claude": {Binary: binary, PromptFlag: "-p"},
	})

	inv, err := builder.Build("claude", "go", map[string]any{"continue": true}, "/w")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := []string{"--continue", "-p", "go"}
	if len(inv.Args) != len(want) {
		t.Fatalf("expected %v, got %v", want, inv.Args)
	}

	inv, err = builder.Build("claude", "go", map[string]any{"continue": false}, "/w")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, arg := range inv.Args {
		if arg == "--continue" {
			t.Fatalf("false bool should not produce a flag: %v", inv.Args)
		}
	}
}

func TestBuildUnknownRuntime(t *testing.T) {
	builder := NewBuilder(map[string]config.RuntimeConfig{})

	_, err := builder.Build("claude", "go", nil, "/w")
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestResolveBinaryOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	override := fakeBinary(t, dir, "claude-override")

	t.Setenv("TEST_CLAUDE_BIN", override)
	builder := NewBuilder(map[string]config.RuntimeConfig{
		"claude": {Binary: "definitely-not-on-path-xyz", OverrideEnv: "TEST_CLAUDE_BIN"},
	})

	inv, err := builder.Build("claude", "go", nil, "/w")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if inv.Binary != override {
		t.Fatalf("expected override binary %q, got %q", override, inv.Binary)
	}
}

func TestResolveBinaryOverrideEnvMissingFile(t *testing.T) {
	t.Setenv("TEST_CLAUDE_BIN", "/nonexistent/claude")
	builder := NewBuilder(map[string]config.RuntimeConfig{
		"claude": {Binary: "claude", OverrideEnv: "TEST_CLAUDE_BIN"},
	})

	_, err := builder.Build("claude", "go", nil, "/w")
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestResolveBinaryNotOnPath(t *testing.T) {
	builder := NewBuilder(map[string]config.RuntimeConfig{
		"claude": {Binary: "definitely-not-on-path-xyz"},
	})

	_, err := builder.Build("claude", "go", nil, "/w")
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
