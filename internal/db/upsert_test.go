package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var placesCfg = UpsertConfig{
	Table:        "places",
	Columns:      []string{"place_id", "title"},
	ConflictKeys: []string{"place_id"},
	DoNothing:    true,
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, placesCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "places",
		ConflictKeys: []string{"place_id"},
	}, [][]any{{"a", "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "places",
		Columns: []string{"place_id", "title"},
	}, [][]any{{"a", "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_places" \(LIKE "places" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_places"}, []string{"place_id", "title"}).
		WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "places" .* ON CONFLICT \("place_id"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"a", "A"}, {"b", "B"}, {"c", "C"}}
	n, err := BulkUpsert(context.Background(), mock, placesCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_places"}, []string{"place_id", "title"}).
		WillReturnError(fmt.Errorf("permission denied"))
	mock.ExpectRollback()

	_, err := BulkUpsert(context.Background(), mock, placesCfg, [][]any{{"a", "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for places")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	_, err := BulkUpsert(context.Background(), mock, placesCfg, [][]any{{"a", "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestBuildUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "do nothing",
			cfg:  placesCfg,
			want: `INSERT INTO "places" ("place_id", "title") SELECT "place_id", "title" FROM "_tmp_upsert_places" ON CONFLICT ("place_id") DO NOTHING`,
		},
		{
			name: "update non-key columns",
			cfg: UpsertConfig{
				Table:        "public.places",
				Columns:      []string{"place_id", "title"},
				ConflictKeys: []string{"place_id"},
			},
			want: `INSERT INTO "public"."places" ("place_id", "title") SELECT "place_id", "title" FROM "_tmp_upsert_public_places" ON CONFLICT ("place_id") DO UPDATE SET "title" = EXCLUDED."title"`,
		},
		{
			name: "only key columns",
			cfg: UpsertConfig{
				Table:        "places",
				Columns:      []string{"place_id"},
				ConflictKeys: []string{"place_id"},
			},
			want: `INSERT INTO "places" ("place_id") SELECT "place_id" FROM "_tmp_upsert_places" ON CONFLICT ("place_id") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildUpsertSQL(tt.cfg))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.places", `"public"."places"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"place_id", "title", "region"})
	assert.Equal(t, `"place_id", "title", "region"`, result)
}
