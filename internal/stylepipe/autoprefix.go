package stylepipe

import (
	"context"
	"strings"
	"unicode/utf16"

	"github.com/tdewolff/parse/v2/css"
)

// declaration is a property: value pair found inside a block
type declaration struct {
	block    int    // Block the declaration belongs to
	prop     string // Lowercased property name
	nameTok  int    // Token index of the property name
	colonTok int    // Token index of the colon
	endTok   int    // Token index of the terminating ';' or '}' (or len(tokens))
}

// prefixerState maintains context while scanning compiled CSS
type prefixerState struct {
	tokens   []token
	decls    []declaration
	declared map[int]map[string]bool // block → "prop" and "prop:value" keys present
}

// Autoprefix inserts vendor-prefixed copies of declarations for the given vendors.
// Existing text is preserved; insertions are placed on the same line as the
// declaration they precede.
func Autoprefix(src []byte, vendors []string) ([]byte, error) {
	out, _, err := autoprefix(src, vendors)
	return out, err
}

func autoprefix(src []byte, vendors []string) ([]byte, []insertion, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, nil, err
	}

	state := &prefixerState{
		tokens:   tokens,
		declared: make(map[int]map[string]bool),
	}
	state.scan()

	allowed := make(map[string]bool, len(vendors))
	for _, v := range vendors {
		allowed[v] = true
	}

	// Token index → text to insert before it
	inserts := make(map[int]string)
	for _, d := range state.decls {
		if text := state.prefixesFor(d, allowed); text != "" {
			inserts[d.nameTok] += text
		}
	}
	if len(inserts) == 0 {
		return src, nil, nil
	}

	var b strings.Builder
	b.Grow(len(src) + 64*len(inserts))
	var ins []insertion
	line, col := 0, 0
	for i, tok := range tokens {
		if text, ok := inserts[i]; ok {
			b.WriteString(text)
			ins = append(ins, insertion{Line: line, Col: col, Width: utf16Len(text)})
		}
		b.WriteString(tok.Text)
		for _, r := range tok.Text {
			if r == '\n' {
				line++
				col = 0
				continue
			}
			col += utf16.RuneLen(r)
		}
	}

	return []byte(b.String()), ins, nil
}

// scan finds every declaration and records which names each block declares
func (s *prefixerState) scan() {
	var stack []int
	nextBlock := 0
	atStart := true

	for i := 0; i < len(s.tokens); i++ {
		tok := s.tokens[i]
		switch tok.Type {
		case css.WhitespaceToken, css.CommentToken:
			continue
		case css.LeftBraceToken:
			stack = append(stack, nextBlock)
			nextBlock++
			atStart = true
			continue
		case css.RightBraceToken:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			atStart = true
			continue
		case css.SemicolonToken:
			atStart = true
			continue
		}

		if atStart && len(stack) > 0 && tok.Type == css.IdentToken {
			colon := s.skipSpace(i + 1)
			if colon < len(s.tokens) && s.tokens[colon].Type == css.ColonToken {
				end, isRule := s.declarationEnd(colon + 1)
				if !isRule {
					d := declaration{
						block:    stack[len(stack)-1],
						prop:     strings.ToLower(tok.Text),
						nameTok:  i,
						colonTok: colon,
						endTok:   end,
					}
					s.decls = append(s.decls, d)
					s.markDeclared(d.block, d.prop)
					s.markDeclared(d.block, d.prop+":"+s.value(d))
					// Resume at the terminator so braces and semicolons are tracked
					i = end - 1
					atStart = false
					continue
				}
			}
		}
		atStart = false
	}
}

// skipSpace returns the index of the next non-whitespace, non-comment token
func (s *prefixerState) skipSpace(i int) int {
	for i < len(s.tokens) && (s.tokens[i].Type == css.WhitespaceToken || s.tokens[i].Type == css.CommentToken) {
		i++
	}
	return i
}

// declarationEnd finds the ';' or '}' ending a declaration value starting at i.
// It reports isRule when a '{' comes first, meaning the tokens were a nested
// selector such as "a:hover {".
func (s *prefixerState) declarationEnd(i int) (end int, isRule bool) {
	depth := 0
	for ; i < len(s.tokens); i++ {
		switch s.tokens[i].Type {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.SemicolonToken, css.RightBraceToken:
			if depth == 0 {
				return i, false
			}
		case css.LeftBraceToken:
			if depth == 0 {
				return i, true
			}
		}
	}
	return len(s.tokens), false
}

func (s *prefixerState) markDeclared(block int, key string) {
	if s.declared[block] == nil {
		s.declared[block] = make(map[string]bool)
	}
	s.declared[block][key] = true
}

// rawValue returns the declaration text after the property name, from the
// colon up to the terminator, on a single line
func (s *prefixerState) rawValue(d declaration) string {
	var b strings.Builder
	for i := d.colonTok; i < d.endTok; i++ {
		b.WriteString(s.tokens[i].Text)
	}
	raw := strings.TrimRight(b.String(), " \t\r\n")
	return strings.Join(strings.Fields(raw), " ")
}

// value returns the normalized declaration value without !important
func (s *prefixerState) value(d declaration) string {
	var b strings.Builder
	for i := d.colonTok + 1; i < d.endTok; i++ {
		tok := s.tokens[i]
		if tok.Type == css.WhitespaceToken || tok.Type == css.CommentToken {
			continue
		}
		b.WriteString(tok.Text)
	}
	v := strings.ToLower(b.String())
	return strings.TrimSuffix(v, "!important")
}

// important returns "!important" when the declaration carries it
func (s *prefixerState) important(d declaration) string {
	var b strings.Builder
	for i := d.colonTok + 1; i < d.endTok; i++ {
		if tok := s.tokens[i]; tok.Type != css.WhitespaceToken && tok.Type != css.CommentToken {
			b.WriteString(tok.Text)
		}
	}
	if strings.HasSuffix(strings.ToLower(b.String()), "!important") {
		return "!important"
	}
	return ""
}

// prefixesFor renders the prefixed declarations to insert before d
func (s *prefixerState) prefixesFor(d declaration, allowed map[string]bool) string {
	declared := s.declared[d.block]
	var b strings.Builder

	for _, vendor := range propertyPrefixes[d.prop] {
		name := "-" + vendor + "-" + d.prop
		if !allowed[vendor] || declared[name] {
			continue
		}
		b.WriteString(name)
		b.WriteString(s.rawValue(d))
		b.WriteString(";")
	}

	if values, ok := valuePrefixes[d.prop]; ok {
		for _, pv := range values[s.value(d)] {
			if !allowed[pv.Vendor] || declared[d.prop+":"+pv.Value] {
				continue
			}
			b.WriteString(d.prop + ":" + pv.Value + s.important(d) + ";")
		}
	}

	return b.String()
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// autoprefixStage prefixes compiled CSS and keeps the source map aligned
type autoprefixStage struct {
	vendors []string
}

func (s *autoprefixStage) Name() string { return "autoprefixer" }

func (s *autoprefixStage) Process(_ context.Context, a *Asset) ([]*Asset, error) {
	out, ins, err := autoprefix(a.Contents, s.vendors)
	if err != nil {
		return nil, CompileError(s.Name(), a.Source, err)
	}
	if a.SourceMap != nil {
		if err := a.SourceMap.shiftColumns(ins); err != nil {
			return nil, CompileError(s.Name(), a.Source, err)
		}
	}
	a.Contents = out
	return []*Asset{a}, nil
}
