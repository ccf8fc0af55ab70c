// Package browser hands media and profile links to the system browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

// Validate checks that link is an absolute http(s) URL safe to pass to a
// launcher command.
func Validate(link string) error {
	if strings.ContainsAny(link, "\x00\r\n") {
		return fmt.Errorf("invalid URL: control characters in %q", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https allowed)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL: missing host in %q", link)
	}
	return nil
}

// Command returns the launcher that opens link on goos without starting it.
func Command(goos, link string) (*exec.Cmd, error) {
	if err := Validate(link); err != nil {
		return nil, err
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", link), nil // #nosec G204 -- URL validated above
	case "darwin":
		return exec.Command("open", link), nil // #nosec G204 -- URL validated above
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", link), nil // #nosec G204 -- URL validated above
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// Open starts the system browser on link and returns once the launcher runs.
func Open(link string) error {
	cmd, err := Command(runtime.GOOS, link)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	// Reap the launcher so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}
