package stylepipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoprefix(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		vendors []string
		want    string
	}{
		{
			name:    "property prefixes in vendor order",
			src:     ".a{user-select:none}",
			vendors: DefaultVendors,
			want:    ".a{-webkit-user-select:none;-moz-user-select:none;-ms-user-select:none;user-select:none}",
		},
		{
			name:    "vendor subset",
			src:     ".a{user-select:none}",
			vendors: []string{"webkit"},
			want:    ".a{-webkit-user-select:none;user-select:none}",
		},
		{
			name:    "value prefixes",
			src:     ".a{display:flex}",
			vendors: DefaultVendors,
			want:    ".a{display:-webkit-box;display:-ms-flexbox;display:flex}",
		},
		{
			name:    "existing prefix is not duplicated",
			src:     ".a{-webkit-transform:none;transform:none}",
			vendors: DefaultVendors,
			want:    ".a{-webkit-transform:none;-ms-transform:none;transform:none}",
		},
		{
			name:    "important is kept",
			src:     ".a { position: sticky !important; }",
			vendors: DefaultVendors,
			want:    ".a { position:-webkit-sticky!important;position: sticky !important; }",
		},
		{
			name:    "expanded output stays on one line per declaration",
			src:     ".a {\n  appearance: none;\n  color: red;\n}\n",
			vendors: DefaultVendors,
			want:    ".a {\n  -webkit-appearance: none;-moz-appearance: none;appearance: none;\n  color: red;\n}\n",
		},
		{
			name:    "nested at-rule blocks",
			src:     "@media (min-width:1px){.a{hyphens:auto}}",
			vendors: DefaultVendors,
			want:    "@media (min-width:1px){.a{-webkit-hyphens:auto;-ms-hyphens:auto;hyphens:auto}}",
		},
		{
			name:    "unknown properties untouched",
			src:     ".a{color:red;margin:0}",
			vendors: DefaultVendors,
			want:    ".a{color:red;margin:0}",
		},
		{
			name:    "no vendors",
			src:     ".a{user-select:none}",
			vendors: nil,
			want:    ".a{user-select:none}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Autoprefix([]byte(tt.src), tt.vendors)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestAutoprefix_Insertions(t *testing.T) {
	_, ins, err := autoprefix([]byte(".a{}\n.b{tab-size:2}"), DefaultVendors)
	require.NoError(t, err)
	assert.Equal(t, []insertion{{Line: 1, Col: 3, Width: len("-moz-tab-size:2;")}}, ins)
}

func TestAutoprefixStage_ShiftsSourceMap(t *testing.T) {
	css := ".a{color:red}.b{tab-size:2}"
	m := &SourceMap{
		Version: 3,
		Sources: []string{"main.scss"},
		Names:   []string{},
	}
	// Segments at generated columns 0 and 13 (".b")
	m.Mappings = encodeMappings([][]segment{{
		{genCol: 0, fields: 4, srcLine: 0},
		{genCol: 13, fields: 4, srcLine: 1},
		{genCol: 16, fields: 4, srcLine: 2},
	}})

	a := &Asset{Path: "main.css", Contents: []byte(css), SourceMap: m}
	out, err := (&autoprefixStage{vendors: DefaultVendors}).Process(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ".a{color:red}.b{-moz-tab-size:2;tab-size:2}", string(out[0].Contents))

	lines, err := decodeMappings(out[0].SourceMap.Mappings)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 0, lines[0][0].genCol)
	assert.Equal(t, 13, lines[0][1].genCol)
	assert.Equal(t, 16+len("-moz-tab-size:2;"), lines[0][2].genCol)
}
