// Package ansi provides ANSI escape codes for terminal output. Printers take a
// Palette so the same formatting code can render with or without color.
package ansi

// ANSI SGR (Select Graphic Rendition) codes.
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Blue    = "\033[34m"
	Yellow  = "\033[33m"
	Green   = "\033[32m"
	Red     = "\033[31m"
	Cyan    = "\033[36m"
	Magenta = "\033[35m"
)

// ClearLine clears the entire current line.
const ClearLine = "\033[2K"

// Palette holds the escape codes a printer uses. The zero Palette renders
// plain text.
type Palette struct {
	Reset   string
	Bold    string
	Dim     string
	Blue    string
	Yellow  string
	Green   string
	Red     string
	Cyan    string
	Magenta string
}

// NewPalette returns the ANSI palette, or the plain one when color is false.
func NewPalette(color bool) Palette {
	if !color {
		return Palette{}
	}
	return Palette{
		Reset:   Reset,
		Bold:    Bold,
		Dim:     Dim,
		Blue:    Blue,
		Yellow:  Yellow,
		Green:   Green,
		Red:     Red,
		Cyan:    Cyan,
		Magenta: Magenta,
	}
}

// Enabled reports whether p emits escape codes.
func (p Palette) Enabled() bool {
	return p.Reset != ""
}
