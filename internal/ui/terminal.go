// Package ui provides terminal styling and output helpers for cpctl.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal returns true if stdout is connected to a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the usual conventions: NO_COLOR disables,
// CLICOLOR_FORCE forces, otherwise color is on only when stdout is a
// TTY whose color profile supports more than plain ANSI-less text.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if !IsTerminal() {
		return false
	}
	return termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
}

// ColorProfile reports the detected terminal color profile, for
// callers that need to degrade styling (e.g. true-color gradients)
// rather than just turning it off entirely.
func ColorProfile() termenv.Profile {
	return termenv.NewOutput(os.Stdout).Profile
}

// GetWidth returns the terminal width, or 80 if it cannot be determined.
func GetWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
