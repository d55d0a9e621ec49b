package command

import (
	"errors"
	"testing"

	"github.com/tmsolberg/conductor/internal/config"
	"github.com/tmsolberg/conductor/internal/models"
)

func TestResolveRuntimeExplicit(t *testing.T) {
	runtimes := map[string]config.RuntimeConfig{
		"claude": {Binary: "claude"},
	}

	name, err := ResolveRuntime("claude", runtimes)
	if err != nil {
		t.Fatalf("ResolveRuntime failed: %v", err)
	}
	if name != "claude" {
		t.Fatalf("expected claude, got %q", name)
	}
}

func TestResolveRuntimeUnregistered(t *testing.T) {
	_, err := ResolveRuntime("gemini", map[string]config.RuntimeConfig{})
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestResolveRuntimeAutoPrefersClaude(t *testing.T) {
	dir := t.TempDir()
	claude := fakeBinary(t, dir, "claude")
	codex := fakeBinary(t, dir, "codex")

	t.Setenv("TEST_CLAUDE_BIN", claude)
	t.Setenv("TEST_CODEX_BIN", codex)

	runtimes := map[string]config.RuntimeConfig{
		"claude": {Binary: "missing-claude-xyz", OverrideEnv: "TEST_CLAUDE_BIN"},
		"codex":  {Binary: "missing-codex-xyz", OverrideEnv: "TEST_CODEX_BIN"},
	}

	name, err := ResolveRuntime(AutoRuntime, runtimes)
	if err != nil {
		t.Fatalf("ResolveRuntime failed: %v", err)
	}
	if name != "claude" {
		t.Fatalf("expected auto to prefer claude, got %q", name)
	}
}

func TestResolveRuntimeAutoFallsBack(t *testing.T) {
	dir := t.TempDir()
	codex := fakeBinary(t, dir, "codex")

	t.Setenv("TEST_CLAUDE_BIN", "/nonexistent/claude")
	t.Setenv("TEST_CODEX_BIN", codex)

	runtimes := map[string]config.RuntimeConfig{
		"claude": {Binary: "missing-claude-xyz", OverrideEnv: "TEST_CLAUDE_BIN"},
		"codex":  {Binary: "missing-codex-xyz", OverrideEnv: "TEST_CODEX_BIN"},
	}

	name, err := ResolveRuntime("", runtimes)
	if err != nil {
		t.Fatalf("ResolveRuntime failed: %v", err)
	}
	if name != "codex" {
		t.Fatalf("expected fallback to codex, got %q", name)
	}
}

func TestResolveRuntimeAutoNothingInstalled(t *testing.T) {
	t.Setenv("TEST_CLAUDE_BIN", "/nonexistent/claude")

	runtimes := map[string]config.RuntimeConfig{
		"claude": {Binary: "missing-claude-xyz", OverrideEnv: "TEST_CLAUDE_BIN"},
	}

	_, err := ResolveRuntime(AutoRuntime, runtimes)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
