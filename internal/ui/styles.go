package ui

import (
	"fmt"
	"os"
)

// Styler renders ANSI-styled text for one output stream, degrading to plain
// text when the stream does not support color.
type Styler struct {
	enabled bool
}

// NewStyler builds a Styler bound to f, typically os.Stdout or os.Stderr.
func NewStyler(f *os.File) Styler {
	return Styler{enabled: shouldColor(f)}
}

// Dim renders status text at reduced intensity.
func (s Styler) Dim(text string) string {
	return s.wrap("2", text)
}

// Warn renders text in amber, used for conflict findings.
func (s Styler) Warn(text string) string {
	return s.wrap("38;5;178", text)
}

func (s Styler) wrap(code, text string) string {
	if !s.enabled {
		return text
	}
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, text)
}
