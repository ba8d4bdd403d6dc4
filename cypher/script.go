package cypher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrBadScript is returned by ReadScript when an artifact block is not a
// statement produced by WriteScript.
var ErrBadScript = errors.New("cypher: unrecognized script statement")

// WriteScript writes stmts as a Cypher script, one semicolon-terminated
// statement per block. The output can be replayed with cypher-shell or read
// back with ReadScript.
func WriteScript(w io.Writer, stmts []Statement) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "// docgraph: %d statements\n", len(stmts))
	for _, s := range stmts {
		bw.WriteString("\n")
		bw.WriteString(s.Literal())
		bw.WriteString(";\n")
	}
	return bw.Flush()
}

// ReadScript parses a script written by WriteScript and returns the exact
// statement sequence it encodes.
func ReadScript(r io.Reader) ([]Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	blocks, err := splitStatements(string(data))
	if err != nil {
		return nil, err
	}

	stmts := make([]Statement, 0, len(blocks))
	for i, block := range blocks {
		s, err := parseStatement(block)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// splitStatements cuts src at semicolons outside literals and identifiers,
// dropping // comments and empty blocks.
func splitStatements(src string) ([]string, error) {
	var (
		blocks []string
		cur    strings.Builder
		quote  byte
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			cur.WriteByte(c)
			switch {
			case c == '\\' && quote != '`' && i+1 < len(src):
				i++
				cur.WriteByte(src[i])
			case c == quote:
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			cur.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				cur.WriteByte('\n')
			}
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated %c", ErrBadScript, quote)
	}
	flush()
	return blocks, nil
}

// parseStatement pulls the three identifiers and two literals out of block
// and checks that the block is exactly what Literal would render for them.
func parseStatement(block string) (Statement, error) {
	var idents, literals []string

	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '`':
			var id strings.Builder
			j := i + 1
			for ; j < len(block); j++ {
				if block[j] == '`' {
					if j+1 < len(block) && block[j+1] == '`' {
						id.WriteByte('`')
						j++
						continue
					}
					break
				}
				id.WriteByte(block[j])
			}
			idents = append(idents, id.String())
			i = j
		case '\'', '"':
			q := block[i]
			j := i + 1
			for ; j < len(block) && block[j] != q; j++ {
				if block[j] == '\\' {
					j++
				}
			}
			if j >= len(block) {
				return Statement{}, fmt.Errorf("%w: unterminated literal", ErrBadScript)
			}
			lit, err := Unquote(block[i : j+1])
			if err != nil {
				return Statement{}, err
			}
			literals = append(literals, lit)
			i = j
		}
	}

	if len(idents) != 3 || len(literals) != 2 {
		return Statement{}, fmt.Errorf("%w: want 3 identifiers and 2 names, got %d and %d",
			ErrBadScript, len(idents), len(literals))
	}
	s := Statement{
		Subject:  NodeKey{Label: idents[0], Name: literals[0]},
		Object:   NodeKey{Label: idents[1], Name: literals[1]},
		Relation: idents[2],
	}
	if s.Literal() != normalizeNewlines(block) {
		return Statement{}, fmt.Errorf("%w: %q", ErrBadScript, firstLine(block))
	}
	return s, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
