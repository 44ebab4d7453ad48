package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/places-crawler/internal/model"
)

func ptr[T any](v T) *T { return &v }

func record(id string) model.ResultRecord {
	return model.ResultRecord{
		Position:  1,
		Title:     "Loja " + id,
		PlaceID:   id,
		Address:   "Rua A, 10",
		City:      "João Pessoa",
		State:     "PB",
		Rating:    ptr(4.5),
		Reviews:   ptr(12),
		Latitude:  ptr(-7.1),
		Longitude: ptr(-34.8),
		Region:    "paraiba",
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{
		"Position", "Title", "Link", "Place ID", "Address", "City", "State",
		"Phone", "Rating", "Reviews", "Latitude", "Longitude", "Region",
	}, Header())
}

func TestOpen_CreatesDirAndHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "paraiba_output.csv")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, strings.Join(Header(), ","), lines[0])
	assert.Zero(t, s.Ledger().Len())
	assert.Equal(t, path, s.Path())
}

func TestAppend_WritesOnceAndUpdatesLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := Open(path)
	require.NoError(t, err)

	wrote, err := s.Append(record("ChIJ-1"))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.True(t, s.Ledger().Has("ChIJ-1"))

	wrote, err = s.Append(record("ChIJ-1"))
	require.NoError(t, err)
	assert.False(t, wrote)
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "ChIJ-1")
	assert.Contains(t, lines[1], `"Rua A, 10"`)
}

func TestOpen_SeedsLedgerFromExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Append(record("ChIJ-1"))
	require.NoError(t, err)
	_, err = s.Append(record("ChIJ-2"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	assert.Equal(t, 2, s.Ledger().Len())
	wrote, err := s.Append(record("ChIJ-2"))
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = s.Append(record("ChIJ-3"))
	require.NoError(t, err)
	assert.True(t, wrote)

	// header is written once across reopenings
	lines := readLines(t, path)
	assert.Len(t, lines, 4)
	assert.Equal(t, 1, strings.Count(strings.Join(lines, "\n"), "Place ID"))
}

func TestOpen_UnterminatedLastRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	content := strings.Join(Header(), ",") + "\n" + "1,A,,p1,,N/A,N/A,,,,,,x"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.True(t, s.Ledger().Has("p1"))

	wrote, err := s.Append(record("p2"))
	require.NoError(t, err)
	assert.True(t, wrote)
	require.NoError(t, s.Close())

	recs, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "p1", recs[0].PlaceID)
	assert.Equal(t, "x", recs[0].Region)
	assert.Equal(t, "p2", recs[1].PlaceID)

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	assert.Equal(t, 2, s.Ledger().Len())
	assert.True(t, s.Ledger().Has("p2"))
	assert.Len(t, readLines(t, path), 3)
}

func TestAppend_PaddedPlaceIDNotRewrittenAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	s, err := Open(path)
	require.NoError(t, err)
	wrote, err := s.Append(record(" ChIJ-9 "))
	require.NoError(t, err)
	assert.True(t, wrote)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	wrote, err = s.Append(record(" ChIJ-9 "))
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = s.Append(record("ChIJ-9"))
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Len(t, readLines(t, path), 2)
}

func TestOpen_EmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	assert.Equal(t, strings.Join(Header(), ","), lines[0])
}

func TestOpen_ForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := Open(path)
	require.NoError(t, err)

	bare := model.ResultRecord{Position: 2, Title: "Sem nota", PlaceID: "ChIJ-2", City: model.NotAvailable, State: model.NotAvailable, Region: "paraiba"}
	for _, r := range []model.ResultRecord{record("ChIJ-1"), bare} {
		_, err := s.Append(r)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, record("ChIJ-1"), got[0])
	assert.Equal(t, "ChIJ-2", got[1].PlaceID)
	assert.Nil(t, got[1].Rating)
	assert.Nil(t, got[1].Reviews)
	assert.Equal(t, model.NotAvailable, got[1].City)
}

func TestReadAll_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := ReadAll(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadAll_Missing(t *testing.T) {
	_, err := ReadAll(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
