package cypher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrBadLiteral is returned by Unquote for malformed string literals.
var ErrBadLiteral = errors.New("cypher: malformed string literal")

// Quote returns s as a single-quoted Cypher string literal. Backslashes,
// quotes and control characters are escaped so the literal always ends at
// its closing quote.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Unquote parses a single- or double-quoted Cypher string literal using the
// same escape rules the database applies.
func Unquote(lit string) (string, error) {
	if len(lit) < 2 {
		return "", ErrBadLiteral
	}
	q := lit[0]
	if (q != '\'' && q != '"') || lit[len(lit)-1] != q {
		return "", ErrBadLiteral
	}
	body := lit[1 : len(lit)-1]

	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); {
		c := body[i]
		if c == q {
			return "", fmt.Errorf("%w: unescaped quote at %d", ErrBadLiteral, i+1)
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(body[i:])
			b.WriteRune(r)
			i += size
			continue
		}
		if i+1 >= len(body) {
			return "", fmt.Errorf("%w: trailing backslash", ErrBadLiteral)
		}
		switch body[i+1] {
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+6 > len(body) {
				return "", fmt.Errorf("%w: short unicode escape", ErrBadLiteral)
			}
			n, err := strconv.ParseUint(body[i+2:i+6], 16, 32)
			if err != nil {
				return "", fmt.Errorf("%w: unicode escape: %v", ErrBadLiteral, err)
			}
			b.WriteRune(rune(n))
			i += 6
			continue
		default:
			return "", fmt.Errorf("%w: unknown escape \\%c", ErrBadLiteral, body[i+1])
		}
		i += 2
	}
	return b.String(), nil
}
