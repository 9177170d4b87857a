package files

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	encodingUTF8    = "utf-8"
	encodingLatin1  = "latin-1"
	encodingReplace = "utf-8-replace"

	// Rough chars-per-token estimate used by the output guards.
	charsPerToken = 4

	// maxOutputTokens bounds any single tool payload handed to the model.
	maxOutputTokens = 25000
)

// estimateTokens approximates the token count of s.
func estimateTokens(s string) int {
	return len(s) / charsPerToken
}

// readWithFallback reads a file trying UTF-8 first, then Latin-1, then
// UTF-8 with replacement runes. It returns the decoded content and the
// encoding used so writes can round-trip it.
func readWithFallback(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	if utf8.Valid(data) {
		return string(data), encodingUTF8, nil
	}
	// Latin-1 maps every byte to a code point, so this always succeeds.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	if len(runes) > 0 {
		return string(runes), encodingLatin1, nil
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), encodingReplace, nil
}

// writeWithEncoding writes content back using the encoding it was read
// with. Latin-1 content containing runes outside its range falls back
// to UTF-8.
func writeWithEncoding(path, content, encoding string) error {
	if encoding == encodingLatin1 {
		buf := make([]byte, 0, len(content))
		ok := true
		for _, r := range content {
			if r > 0xFF {
				ok = false
				break
			}
			buf = append(buf, byte(r))
		}
		if ok {
			return os.WriteFile(path, buf, 0o644)
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// expandTabs replaces tabs with spaces at 8-column stops, per line.
func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			pad := 8 - col%8
			b.WriteString(strings.Repeat(" ", pad))
			col += pad
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

// numberLines renders content lines with right-aligned line numbers
// starting at first, in the "     1→text" style the model reads back.
func numberLines(lines []string, first int) string {
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%6d→%s\n", first+i, line)
	}
	return b.String()
}
