package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	writeStub(t, present)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: " "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for empty command: %q", results[2].Detail)
	}
}

func TestResolveChromeConfiguredPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	path := filepath.Join(t.TempDir(), "my-chrome")
	writeStub(t, path)

	status := ResolveChrome(path)
	if !status.Available || status.Command != path {
		t.Fatalf("expected configured browser to resolve, got %#v", status)
	}
}

func TestResolveChromeConfiguredMissing(t *testing.T) {
	status := ResolveChrome(filepath.Join(t.TempDir(), "absent"))
	if status.Available || status.Detail == "" {
		t.Fatalf("expected failure with detail, got %#v", status)
	}
}

func TestResolveChromeSearchesPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("candidate names are linux specific")
	}
	binDir := t.TempDir()
	chromium := filepath.Join(binDir, "chromium")
	writeStub(t, chromium)
	t.Setenv("PATH", binDir)

	status := ResolveChrome("")
	if !status.Available || status.Command != chromium {
		t.Fatalf("expected chromium from PATH, got %#v", status)
	}
}

func TestResolveChromeNotFound(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("candidate names are linux specific")
	}
	t.Setenv("PATH", t.TempDir())
	status := ResolveChrome("")
	// An absolute fallback candidate may exist on the host.
	if status.Available && status.Command != "/usr/bin/google-chrome" {
		t.Fatalf("unexpected resolution %#v", status)
	}
	if !status.Available && status.Detail == "" {
		t.Fatal("expected detail when chrome is unavailable")
	}
}
