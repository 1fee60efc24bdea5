package assets

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFiles(t *testing.T) {
	static := Static()

	for _, name := range []string{"default.css", "viewer.js"} {
		t.Run(name, func(t *testing.T) {
			data, err := fs.ReadFile(static, name)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}

func TestDefaultStylesheetMatchesEmbeddedFile(t *testing.T) {
	data, err := fs.ReadFile(Static(), "default.css")
	require.NoError(t, err)
	assert.Equal(t, string(data), DefaultStylesheet)
}

func TestViewerScriptReadsPortAttribute(t *testing.T) {
	data, err := fs.ReadFile(Static(), "viewer.js")
	require.NoError(t, err)
	assert.Contains(t, string(data), "data-ws-port")
	assert.Contains(t, string(data), `getElementById("content")`)
	assert.Contains(t, string(data), `getElementById("stylesheet")`)
}
