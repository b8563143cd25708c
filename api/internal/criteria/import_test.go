package criteria

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAMLList(t *testing.T) {
	set, err := Parse([]byte(`
- id: "1"
  label: Blurry
  type: forbidden
  strictness: High
- id: "2"
  label: Smiling
  type: desired
`))
	require.NoError(t, err)
	assert.Equal(t, Set{
		{ID: "1", Label: "Blurry", Type: Forbidden, Strictness: High},
		{ID: "2", Label: "Smiling", Type: Desired},
	}, set)
}

func TestParseJSONDocument(t *testing.T) {
	set, err := Parse([]byte(`{"criteria":[{"id":"a","label":"Dark","type":"forbidden","strictness":"Low"}]}`))
	require.NoError(t, err)
	assert.Equal(t, Set{{ID: "a", Label: "Dark", Type: Forbidden, Strictness: Low}}, set)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`[{"id":"a","label":"Dark","type":"sometimes"}]`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "criteria.yaml")
	require.NoError(t, os.WriteFile(path, []byte("criteria:\n  - {id: x, label: Tidy, type: desired}\n"), 0o644))
	set, err := Import(path)
	require.NoError(t, err)
	assert.Len(t, set, 1)

	_, err = Import(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
