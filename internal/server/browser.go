package server

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
)

// startCommand launches a process without waiting for it.
var startCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// OpenBrowser opens target in the user's default browser. Failures are
// logged, never returned; the preview works without a browser window.
func OpenBrowser(ctx context.Context, target string, logger logging.Logger) {
	if err := validateBrowserURL(target); err != nil {
		logger.Warn(ctx, err, "Not opening browser", "url", target)
		return
	}

	name, args, err := browserCommand(runtime.GOOS, target)
	if err != nil {
		logger.Warn(ctx, err, "Failed to open browser", "url", target)
		return
	}

	if err := startCommand(name, args...); err != nil {
		logger.Warn(ctx, err, "Failed to open browser", "url", target, "command", name)
		return
	}
	logger.Debug(ctx, "Opened browser", "url", target, "command", name)
}

func browserCommand(goos, target string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform %q", goos)
	}
}

// validateBrowserURL only lets plain http(s) URLs reach a system command.
func validateBrowserURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid browser URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "browser URL must be http or https")
	}
	if u.Host == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "browser URL has no host")
	}
	return nil
}
