package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommand returns the command that opens url: $BROWSER when set, otherwise the platform opener.
func browserCommand(url string, lookupEnv func(string) (string, bool)) (*exec.Cmd, error) {
	if b, ok := lookupEnv("BROWSER"); ok && strings.TrimSpace(b) != "" {
		args := strings.Fields(b)
		return exec.Command(args[0], append(args[1:], url)...), nil
	}

	switch rt := getRuntime(); rt {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", rt)
	}
}

// OpenBrowser opens url in the user's browser without waiting for it to exit.
//
// The BROWSER environment variable takes precedence over the platform default.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(url, os.LookupEnv)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
