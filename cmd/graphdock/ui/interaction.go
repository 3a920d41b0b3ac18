package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoColor       = "NO_COLOR"
	envNoInteraction = "NO_INTERACTION"
	envCI            = "CI"
	envTerm          = "TERM"
)

var state struct {
	mu     sync.Mutex
	set    bool
	styled bool
}

// ConfigureInteraction decides whether output gets colors and sets the
// lipgloss profile accordingly. plain forces plain-text rendering.
func ConfigureInteraction(plain bool) {
	styled := detectInteractiveMode(plain)

	state.mu.Lock()
	state.set = true
	state.styled = styled
	state.mu.Unlock()

	profile := termenv.Ascii
	if styled {
		profile = termenv.ColorProfile()
	}
	lipgloss.SetColorProfile(profile)
}

// IsInteractive reports whether styled, human-facing output is wanted.
// First use without prior configuration detects the mode itself.
func IsInteractive() bool {
	state.mu.Lock()
	if state.set {
		styled := state.styled
		state.mu.Unlock()
		return styled
	}
	state.mu.Unlock()

	ConfigureInteraction(false)
	return IsInteractive()
}

func detectInteractiveMode(plain bool) bool {
	if plain {
		return false
	}
	// NO_COLOR disables styling by mere presence, per convention.
	if _, set := os.LookupEnv(envNoColor); set {
		return false
	}
	if envTruthy(envNoInteraction) || envTruthy(envCI) {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envTerm)), "dumb") {
		return false
	}
	return stderrIsTerminal()
}

func stderrIsTerminal() bool {
	info, err := os.Stderr.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
