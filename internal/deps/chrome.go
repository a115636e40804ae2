package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// chromeCandidates mirrors the names chromedp's allocator tries when no
// executable path is configured.
func chromeCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{"chrome", "chrome.exe"}
	default:
		return []string{
			"headless_shell",
			"headless-shell",
			"chromium",
			"chromium-browser",
			"google-chrome",
			"google-chrome-stable",
			"google-chrome-beta",
			"google-chrome-unstable",
			"/usr/bin/google-chrome",
		}
	}
}

// ResolveChrome reports the browser binary a session will launch. A
// configured path must exist; otherwise the first candidate found wins.
func ResolveChrome(configured string) Status {
	status := Status{Name: "Chrome", Description: "Drives the podcast host dashboard"}

	if path := strings.TrimSpace(configured); path != "" {
		status.Command = path
		if resolved, err := exec.LookPath(path); err == nil {
			status.Command = resolved
			status.Available = true
			return status
		}
		if info, err := os.Stat(path); err == nil && isExecutable(info) {
			status.Available = true
			return status
		}
		status.Detail = fmt.Sprintf("configured browser %q not found", path)
		return status
	}

	for _, candidate := range chromeCandidates() {
		if resolved, err := exec.LookPath(candidate); err == nil {
			status.Command = resolved
			status.Available = true
			return status
		}
	}
	status.Detail = "no chrome or chromium binary on PATH; set browser.exec_path"
	return status
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
