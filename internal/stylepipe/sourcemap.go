package stylepipe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// SourceMap is a revision 3 source map
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// ParseSourceMap decodes a JSON source map
func ParseSourceMap(data []byte) (*SourceMap, error) {
	var m SourceMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return &m, nil
}

// Marshal encodes the map as JSON
func (m *SourceMap) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// segment is one decoded mapping; fields is 1, 4 or 5
type segment struct {
	genCol  int
	fields  int
	src     int
	srcLine int
	srcCol  int
	name    int
}

const vlqChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var vlqIndex = func() [256]int {
	var idx [256]int
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(vlqChars); i++ {
		idx[vlqChars[i]] = i
	}
	return idx
}()

func encodeVLQ(b *strings.Builder, v int) {
	n := v << 1
	if v < 0 {
		n = (-v << 1) | 1
	}
	for {
		digit := n & 31
		n >>= 5
		if n > 0 {
			digit |= 32
		}
		b.WriteByte(vlqChars[digit])
		if n == 0 {
			return
		}
	}
}

func decodeVLQ(s string, pos int) (value, next int, err error) {
	shift, n := 0, 0
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("truncated VLQ at offset %d", pos)
		}
		digit := vlqIndex[s[pos]]
		if digit < 0 {
			return 0, pos, fmt.Errorf("invalid VLQ character %q at offset %d", s[pos], pos)
		}
		pos++
		n += (digit & 31) << shift
		shift += 5
		if digit&32 == 0 {
			break
		}
	}
	if n&1 == 1 {
		return -(n >> 1), pos, nil
	}
	return n >> 1, pos, nil
}

// decodeMappings expands the mappings string into absolute segments per line
func decodeMappings(mappings string) ([][]segment, error) {
	var lines [][]segment
	var src, srcLine, srcCol, name int

	for _, group := range strings.Split(mappings, ";") {
		var line []segment
		genCol := 0
		for _, raw := range strings.Split(group, ",") {
			if raw == "" {
				continue
			}
			var vals []int
			for pos := 0; pos < len(raw); {
				v, next, err := decodeVLQ(raw, pos)
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
				pos = next
			}

			seg := segment{fields: len(vals)}
			switch len(vals) {
			case 5:
				name += vals[4]
				seg.name = name
				fallthrough
			case 4:
				src += vals[1]
				srcLine += vals[2]
				srcCol += vals[3]
				seg.src, seg.srcLine, seg.srcCol = src, srcLine, srcCol
				fallthrough
			case 1:
				genCol += vals[0]
				seg.genCol = genCol
			default:
				return nil, fmt.Errorf("invalid mapping segment %q", raw)
			}
			line = append(line, seg)
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// encodeMappings is the inverse of decodeMappings
func encodeMappings(lines [][]segment) string {
	var b strings.Builder
	var src, srcLine, srcCol, name int

	for i, line := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		genCol := 0
		for j, seg := range line {
			if j > 0 {
				b.WriteByte(',')
			}
			encodeVLQ(&b, seg.genCol-genCol)
			genCol = seg.genCol
			if seg.fields >= 4 {
				encodeVLQ(&b, seg.src-src)
				encodeVLQ(&b, seg.srcLine-srcLine)
				encodeVLQ(&b, seg.srcCol-srcCol)
				src, srcLine, srcCol = seg.src, seg.srcLine, seg.srcCol
			}
			if seg.fields == 5 {
				encodeVLQ(&b, seg.name-name)
				name = seg.name
			}
		}
	}

	return b.String()
}

// identitySourceMap maps every line of content onto itself
func identitySourceMap(file string, content []byte) *SourceMap {
	n := bytes.Count(content, []byte("\n")) + 1
	lines := make([][]segment, n)
	for i := range lines {
		lines[i] = []segment{{genCol: 0, fields: 4, src: 0, srcLine: i, srcCol: 0}}
	}
	return &SourceMap{
		Version:        3,
		File:           file,
		Sources:        []string{file},
		SourcesContent: []string{string(content)},
		Names:          []string{},
		Mappings:       encodeMappings(lines),
	}
}

// insertion records text inserted into generated output that the map does
// not know about. Line is 0-based; Col and Width are in UTF-16 code units,
// measured against the output before the insertion.
type insertion struct {
	Line  int
	Col   int
	Width int
}

// shiftColumns moves generated columns right past inserted text
func (m *SourceMap) shiftColumns(ins []insertion) error {
	if len(ins) == 0 {
		return nil
	}

	lines, err := decodeMappings(m.Mappings)
	if err != nil {
		return err
	}

	byLine := make(map[int][]insertion)
	for _, in := range ins {
		byLine[in.Line] = append(byLine[in.Line], in)
	}

	for lineNo, lineIns := range byLine {
		if lineNo >= len(lines) {
			continue
		}
		sort.Slice(lineIns, func(i, j int) bool { return lineIns[i].Col < lineIns[j].Col })
		for i := range lines[lineNo] {
			seg := &lines[lineNo][i]
			shift := 0
			for _, in := range lineIns {
				if in.Col > seg.genCol {
					break
				}
				shift += in.Width
			}
			seg.genCol += shift
		}
	}

	m.Mappings = encodeMappings(lines)
	return nil
}

const mapCommentPrefix = "/*# sourceMappingURL="

// extractInlineSourceMap strips a trailing data URL source map comment from
// css and returns the decoded map, or nil when there is none
func extractInlineSourceMap(css []byte) ([]byte, *SourceMap, error) {
	start := bytes.LastIndex(css, []byte(mapCommentPrefix))
	if start < 0 {
		return css, nil, nil
	}
	rest := css[start+len(mapCommentPrefix):]
	end := bytes.Index(rest, []byte("*/"))
	if end < 0 {
		return css, nil, nil
	}

	ref := strings.TrimSpace(string(rest[:end]))
	if !strings.HasPrefix(ref, "data:") {
		return css, nil, nil
	}
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, nil, fmt.Errorf("malformed source map data URL")
	}

	var data []byte
	if strings.HasSuffix(ref[:comma], ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(ref[comma+1:])
		if err != nil {
			return nil, nil, fmt.Errorf("decode inline source map: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(ref[comma+1:])
		if err != nil {
			return nil, nil, fmt.Errorf("decode inline source map: %w", err)
		}
		data = []byte(unescaped)
	}

	m, err := ParseSourceMap(data)
	if err != nil {
		return nil, nil, err
	}

	cleaned := bytes.TrimRight(css[:start], " \t\r\n")
	out := make([]byte, 0, len(cleaned)+1)
	out = append(out, cleaned...)
	out = append(out, '\n')
	return out, m, nil
}

// sourcemapInitStage attaches an identity map holding the original source
type sourcemapInitStage struct{}

func (sourcemapInitStage) Name() string { return "sourcemaps.init" }

func (sourcemapInitStage) Process(_ context.Context, a *Asset) ([]*Asset, error) {
	a.SourceMap = identitySourceMap(a.Source, a.Contents)
	return []*Asset{a}, nil
}

// sourcemapWriteStage finalizes maps: source root, relative sources, embedded
// contents, and either a companion .map asset or an inline data URL
type sourcemapWriteStage struct {
	mode       SourceMapMode
	sourceRoot string
}

func (s *sourcemapWriteStage) Name() string { return "sourcemaps.write" }

func (s *sourcemapWriteStage) Process(_ context.Context, a *Asset) ([]*Asset, error) {
	m := a.SourceMap
	a.SourceMap = nil
	if m == nil || s.mode == SourceMapNone {
		return []*Asset{a}, nil
	}

	m.File = path.Base(a.Path)
	m.SourceRoot = s.sourceRoot
	fillSourcesContent(m)
	for i, src := range m.Sources {
		m.Sources[i] = relativeSource(a.Base, src)
	}

	data, err := m.Marshal()
	if err != nil {
		return nil, CompileError(s.Name(), a.Source, err)
	}

	css := bytes.TrimRight(a.Contents, "\n")
	switch s.mode {
	case SourceMapInline:
		comment := mapCommentPrefix + "data:application/json;charset=utf8;base64," + base64.StdEncoding.EncodeToString(data) + " */\n"
		a.Contents = append(append(css, '\n'), comment...)
		return []*Asset{a}, nil
	default:
		mapPath := a.Path + ".map"
		comment := mapCommentPrefix + path.Base(mapPath) + " */\n"
		a.Contents = append(append(css, '\n'), comment...)
		mapAsset := &Asset{
			Base:     a.Base,
			Path:     mapPath,
			Source:   a.Source,
			Contents: data,
		}
		return []*Asset{a, mapAsset}, nil
	}
}

// fillSourcesContent loads missing source contents from disk
func fillSourcesContent(m *SourceMap) {
	if len(m.SourcesContent) >= len(m.Sources) {
		return
	}
	contents := make([]string, len(m.Sources))
	copy(contents, m.SourcesContent)
	for i := len(m.SourcesContent); i < len(m.Sources); i++ {
		// #nosec G304 - paths come from compiler output for project files
		if data, err := os.ReadFile(localPath(m.Sources[i])); err == nil {
			contents[i] = string(data)
		}
	}
	m.SourcesContent = contents
}

// localPath turns a file: URL into a filesystem path
func localPath(src string) string {
	if strings.HasPrefix(src, "file://") {
		if u, err := url.Parse(src); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	return src
}

// relativeSource expresses src relative to the asset base with forward slashes
func relativeSource(base, src string) string {
	p := localPath(src)
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
