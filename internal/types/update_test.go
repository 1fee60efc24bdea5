package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleString(t *testing.T) {
	testCases := []struct {
		role     Role
		expected string
	}{
		{RoleDocument, "document"},
		{RoleStylesheet, "stylesheet"},
		{Role(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.role.String())
		})
	}
}

func TestUpdateConstructors(t *testing.T) {
	full := NewUpdate("<h1>x</h1>", "body{}")
	assert.True(t, full.IsComplete())
	assert.False(t, full.IsEmpty())

	content := ContentUpdate("<p>a</p>")
	assert.False(t, content.IsComplete())
	assert.Nil(t, content.Stylesheet)
	assert.Equal(t, "<p>a</p>", content.ContentOrEmpty())

	css := StylesheetUpdate("p{}")
	assert.Nil(t, css.Content)
	assert.Equal(t, "p{}", css.StylesheetOrEmpty())

	assert.True(t, Update{}.IsEmpty())
}

func TestUpdateMerge(t *testing.T) {
	base := NewUpdate("old", "old.css")

	merged := base.Merge(ContentUpdate("new"))
	assert.Equal(t, "new", merged.ContentOrEmpty())
	assert.Equal(t, "old.css", merged.StylesheetOrEmpty())

	// base must be untouched
	assert.Equal(t, "old", base.ContentOrEmpty())

	merged = merged.Merge(StylesheetUpdate("new.css"))
	assert.Equal(t, "new", merged.ContentOrEmpty())
	assert.Equal(t, "new.css", merged.StylesheetOrEmpty())
}

func TestUpdateJSON(t *testing.T) {
	data, err := json.Marshal(ContentUpdate("<p>x</p>"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"<p>x</p>"}`, string(data))

	data, err = json.Marshal(NewUpdate("", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"","stylesheet":""}`, string(data))

	var decoded Update
	require.NoError(t, json.Unmarshal([]byte(`{"stylesheet":"a{}"}`), &decoded))
	assert.Nil(t, decoded.Content)
	assert.Equal(t, "a{}", decoded.StylesheetOrEmpty())
}
