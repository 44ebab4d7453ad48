// Package ledger tracks the place IDs already present in a region's output
// file.
package ledger

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/model"
)

// Ledger is the in-memory set of known place IDs. It is rebuilt from the
// output file on every start and mirrors it exactly, which holds because the
// output file is append-only. Not safe for concurrent use.
type Ledger struct {
	ids map[string]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{ids: make(map[string]struct{})}
}

// Seed adds the Place ID column of every row in the output file at path.
// A missing file seeds nothing.
func (l *Ledger) Seed(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "ledger: read header of %s", path)
	}

	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == model.PlaceIDColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return eris.Errorf("ledger: %s has no %q column", path, model.PlaceIDColumn)
	}

	before := len(l.ids)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return eris.Wrapf(err, "ledger: read %s", path)
		}
		if col >= len(rec) {
			continue
		}
		if id := key(rec[col]); id != "" {
			l.ids[id] = struct{}{}
		}
	}

	zap.L().Info("ledger seeded",
		zap.String("path", path),
		zap.Int("ids", len(l.ids)-before),
	)
	return nil
}

// Has reports whether id is already recorded. Surrounding whitespace is
// ignored, as in Seed.
func (l *Ledger) Has(id string) bool {
	_, ok := l.ids[key(id)]
	return ok
}

// Add records id.
func (l *Ledger) Add(id string) {
	l.ids[key(id)] = struct{}{}
}

func key(id string) string {
	return strings.TrimSpace(id)
}

// Len is the number of recorded IDs.
func (l *Ledger) Len() int {
	return len(l.ids)
}
