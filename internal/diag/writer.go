// Package diag writes decoded codes as diagnostics lines.
package diag

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"rfidgate/internal/tag"
)

// Format selects how a decoded code is rendered.
type Format string

// Supported formats
const (
	FormatBinary  Format = "binary"  // 44 '0'/'1' characters
	FormatHex     Format = "hex"     // 11 hex digits
	FormatDecimal Format = "decimal" // unique id
)

// LineEnding terminates every diagnostics line.
const LineEnding = "\r\n"

// ParseFormats validates format names. Names are case-insensitive and
// duplicates are dropped.
func ParseFormats(names []string) ([]Format, error) {
	formats := make([]Format, 0, len(names))
	seen := make(map[Format]bool)
	for _, name := range names {
		f := Format(strings.ToLower(strings.TrimSpace(name)))
		switch f {
		case FormatBinary, FormatHex, FormatDecimal:
		default:
			return nil, fmt.Errorf("unknown diagnostics format %q", name)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	return formats, nil
}

// Render returns code in format f, without line ending.
func Render(code *tag.Code, f Format) string {
	switch f {
	case FormatHex:
		return code.Hex()
	case FormatDecimal:
		return strconv.FormatUint(uint64(code.UniqueID()), 10)
	default:
		return code.Binary()
	}
}

// Writer writes one line per configured format for every decoded code.
type Writer struct {
	out     io.Writer
	formats []Format
	mu      sync.Mutex
}

// NewWriter creates a writer. With no formats it writes nothing.
func NewWriter(out io.Writer, formats []Format) *Writer {
	return &Writer{
		out:     out,
		formats: append([]Format(nil), formats...),
	}
}

// Enabled reports whether any format is configured.
func (w *Writer) Enabled() bool {
	return len(w.formats) > 0
}

// WriteCode writes code in every configured format.
func (w *Writer) WriteCode(code *tag.Code) error {
	if !w.Enabled() {
		return nil
	}

	var sb strings.Builder
	for _, f := range w.formats {
		sb.WriteString(Render(code, f))
		sb.WriteString(LineEnding)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, sb.String()); err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}
	return nil
}
