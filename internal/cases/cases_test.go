package cases

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	input := `{"id":"a","user_feedback":"crash on settings open","retrieved_list":["doc1","doc2"]}

{"user_feedback":"sync never finishes"}
`
	got, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, []string{"doc1", "doc2"}, got[0].RetrievedList)
	assert.Equal(t, "1", got[1].ID, "missing id falls back to the case index")
	assert.Empty(t, got[1].RetrievedList)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader("{\"id\":\"a\",\"user_feedback\":\"x\"}\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = Read(strings.NewReader(`{"id":"a","user_feedback":"  "}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_feedback is required")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","user_feedback":"y"}`+"\n"), 0644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
