package stylepipe

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// token is a lexed CSS token with its byte offset in the source
type token struct {
	Type   css.TokenType
	Text   string
	Offset int
}

// tokenize lexes src into tokens whose texts concatenate back to src.
// Bytes the lexer does not consume are appended as a final delim token.
func tokenize(src []byte) ([]token, error) {
	lexer := css.NewLexer(parse.NewInputBytes(src))

	var tokens []token
	offset := 0
	for {
		tt, text := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			break
		}
		tokens = append(tokens, token{Type: tt, Text: string(text), Offset: offset})
		offset += len(text)
	}

	if offset < len(src) {
		tokens = append(tokens, token{Type: css.DelimToken, Text: string(src[offset:]), Offset: offset})
	}

	return tokens, nil
}

// lineComments returns the [start, end) ranges of // comments in src, as
// written in SCSS, Less and Stylus. Strings, block comments and url()
// arguments are skipped. A range ends before its newline.
func lineComments(src []byte) [][2]int {
	var ranges [][2]int
	skipTo := func(i int, stop string) int {
		if j := bytes.Index(src[i:], []byte(stop)); j >= 0 {
			return i + j + len(stop)
		}
		return len(src)
	}
	lineEnd := func(i int) int {
		if j := bytes.IndexByte(src[i:], '\n'); j >= 0 {
			return i + j
		}
		return len(src)
	}

	for i := 0; i < len(src); {
		switch c := src[i]; {
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i = skipTo(i+2, "*/")
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			end := lineEnd(i)
			ranges = append(ranges, [2]int{i, end})
			i = end
		case c == '"' || c == '\'':
			i = skipString(src, i)
		case (c == 'u' || c == 'U') && i+4 <= len(src) && bytes.EqualFold(src[i:i+4], []byte("url(")):
			// unclosed url( stops at the end of its line
			end := min(skipTo(i+4, ")"), lineEnd(i)+1)
			i = min(end, len(src))
		default:
			i++
		}
	}
	return ranges
}

// skipString returns the offset just past the string literal starting at i.
// Unterminated strings end at the newline.
func skipString(src []byte, i int) int {
	quote := src[i]
	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		case '\n':
			return i
		}
	}
	return len(src)
}

// tokenizeSource is tokenize for preprocessor sources: // comments become
// single comment tokens and the code between them is lexed as CSS.
func tokenizeSource(src []byte) ([]token, error) {
	var tokens []token
	pos := 0
	lex := func(end int) error {
		seg, err := tokenize(src[pos:end])
		if err != nil {
			return err
		}
		for _, tok := range seg {
			tok.Offset += pos
			tokens = append(tokens, tok)
		}
		return nil
	}

	for _, r := range lineComments(src) {
		if err := lex(r[0]); err != nil {
			return nil, err
		}
		tokens = append(tokens, token{Type: css.CommentToken, Text: string(src[r[0]:r[1]]), Offset: r[0]})
		pos = r[1]
	}
	if err := lex(len(src)); err != nil {
		return nil, err
	}
	return tokens, nil
}

// InsertionPoint is the marker region of an entry file, parsed once.
// Everything outside [Start, End) is preserved byte for byte.
type InsertionPoint struct {
	Before []byte // Source up to and including the start marker
	After  []byte // Source from the end marker onwards
	Indent string // Whitespace preceding the start marker on its line
}

// ParseInsertionPoint locates the start/end marker comments in src.
// Exactly one start marker followed by exactly one end marker is required.
func ParseInsertionPoint(src []byte, startMarker, endMarker string) (*InsertionPoint, error) {
	tokens, err := tokenizeSource(src)
	if err != nil {
		return nil, err
	}

	start, end, markerStart := -1, -1, -1
	for _, tok := range tokens {
		if tok.Type != css.CommentToken {
			continue
		}
		switch strings.TrimSpace(tok.Text) {
		case startMarker:
			if start >= 0 {
				return nil, errors.New("duplicate start marker " + startMarker)
			}
			markerStart = tok.Offset
			start = tok.Offset + len(tok.Text)
		case endMarker:
			if end >= 0 {
				return nil, errors.New("duplicate end marker " + endMarker)
			}
			end = tok.Offset
		}
	}

	switch {
	case start < 0:
		return nil, errors.New("missing start marker " + startMarker)
	case end < 0:
		return nil, errors.New("missing end marker " + endMarker)
	case end < start:
		return nil, errors.New("end marker " + endMarker + " precedes start marker " + startMarker)
	}

	lineStart := bytes.LastIndexByte(src[:markerStart], '\n') + 1
	indent := src[lineStart:markerStart]
	if len(bytes.TrimLeft(indent, " \t")) != 0 {
		// Marker shares its line with other content
		indent = nil
	}

	return &InsertionPoint{
		Before: src[:start],
		After:  src[end:],
		Indent: string(indent),
	}, nil
}

// Splice renders the source with lines replacing the marker region.
// The output depends only on the surrounding source and lines, so splicing
// the same lines again yields identical bytes.
func (p *InsertionPoint) Splice(lines []string) []byte {
	var b bytes.Buffer
	b.Grow(len(p.Before) + len(p.After) + 64*len(lines))
	b.Write(p.Before)
	b.WriteByte('\n')
	for _, line := range lines {
		b.WriteString(p.Indent)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(p.Indent)
	b.Write(p.After)
	return b.Bytes()
}
