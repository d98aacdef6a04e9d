package analysis

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineSeparator is the separator detected in a loaded file.
type LineSeparator string

const (
	LF   LineSeparator = "\n"
	CRLF LineSeparator = "\r\n"
	CR   LineSeparator = "\r"
)

// Text is decoded file content with line separators normalised to "\n".
type Text struct {
	Content   string
	Separator LineSeparator
}

// LoadText reads path from fs and decodes it. A UTF-8 or UTF-16 byte order
// mark selects the encoding; without one the bytes are taken as UTF-8.
func LoadText(fs afero.Fs, path string) (*Text, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	content := string(decoded)
	sep := detectSeparator(content)
	if sep != LF {
		content = strings.ReplaceAll(content, "\r\n", "\n")
		content = strings.ReplaceAll(content, "\r", "\n")
	}
	return &Text{Content: content, Separator: sep}, nil
}

// detectSeparator returns the first line separator found, LF by default.
func detectSeparator(s string) LineSeparator {
	i := strings.IndexAny(s, "\r\n")
	if i < 0 || s[i] == '\n' {
		return LF
	}
	if i+1 < len(s) && s[i+1] == '\n' {
		return CRLF
	}
	return CR
}
