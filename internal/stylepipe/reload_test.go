package stylepipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchReload(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.css", "main.css", true},
		{"**/*.css", "themes/dark.css", true},
		{"**/*.css", "main.css.map", false},
		{"**/*.css", "main.scss", false},
		{"*.css", "themes/dark.css", false},
		{"[", "main.css", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchReload(tt.pattern, tt.path))
		})
	}
}

func TestReloadStage_OnlyCSSIsPushed(t *testing.T) {
	var pushed []string
	st := &reloadStage{
		match:    DefaultReloadMatch,
		notifier: NotifierFunc(func(p string) { pushed = append(pushed, p) }),
	}

	batch := []*Asset{
		{Path: "main.css"},
		{Path: "main.css.map"},
		{Path: "fonts/icons.woff"},
		{Path: "admin/admin.css"},
	}
	for _, a := range batch {
		out, err := st.Process(context.Background(), a)
		require.NoError(t, err)
		assert.Equal(t, []*Asset{a}, out, "assets always pass through")
	}

	assert.Equal(t, []string{"main.css", "admin/admin.css"}, pushed)
}
