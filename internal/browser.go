package internal

import (
	"net/url"
	"os/exec"
	"runtime"
)

// isOpenableURL reports whether raw is a well-formed http or https URL.
// Anything else (other schemes, garbage) must never reach a shell-out.
func isOpenableURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// OpenURL opens raw in the user's default browser. URLs that are not plain
// http/https are dropped silently; the verification URI is always printed to
// the user as well, so a failed open is never fatal.
func OpenURL(raw string) {
	if !isOpenableURL(raw) {
		Log.Debug().Str("url", raw).Msg("refusing to open non-http url")
		return
	}

	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", raw).Start()
	case "linux":
		err = exec.Command("xdg-open", raw).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", raw).Start()
	default:
		Log.Debug().Str("os", runtime.GOOS).Msg("no browser opener for platform")
		return
	}
	if err != nil {
		Log.Debug().Err(err).Msg("browser open failed")
	}
}
