package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"paraiba", "paraiba"},
		{"Paraíba", "paraiba"},
		{"  São Paulo ", "sao_paulo"},
		{"Rio Grande do Norte", "rio_grande_do_norte"},
		{"PIAUÍ", "piaui"},
		{"Ceará", "ceara"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "../etc", "a/b", ".."} {
		_, err := Normalize(in)
		assert.Error(t, err, in)
	}
}

func TestResolve(t *testing.T) {
	p, err := Resolve("Paraíba", "data", "results", ".backup")
	require.NoError(t, err)
	assert.Equal(t, "paraiba", p.Name)
	assert.Equal(t, filepath.Join("data", "paraiba.csv"), p.Input)
	assert.Equal(t, filepath.Join("data", "paraiba.csv.backup"), p.Resume)
	assert.Equal(t, filepath.Join("results", "paraiba_output.csv"), p.Output)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"paraiba.csv", "sergipe.csv", "paraiba.csv.backup", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("latitude,longitude\n"), 0o644))
	}

	names, err := Discover(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"paraiba", "sergipe"}, names)
}
