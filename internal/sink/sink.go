// Package sink appends deduplicated result records to a region's output CSV.
package sink

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/ledger"
	"github.com/sells-group/places-crawler/internal/model"
)

// Header returns the output file's column titles in order.
func Header() []string {
	h, err := csvutil.Header(model.ResultRecord{}, "csv")
	if err != nil {
		// ResultRecord's tags are static; a failure here is a programming error.
		panic(err)
	}
	return h
}

// Sink owns the output file and the ledger that mirrors it.
type Sink struct {
	path   string
	ledger *ledger.Ledger
	f      *os.File
	w      *csv.Writer
	enc    *csvutil.Encoder
	log    *zap.Logger
}

// Open prepares the output file at path, writing the header if the file is
// absent or empty, and seeds a ledger from the rows already in it.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "sink: create dir for %s", path)
	}

	fresh := false
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fresh = true
	case err != nil:
		return nil, eris.Wrapf(err, "sink: stat %s", path)
	case info.Size() == 0:
		fresh = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: open %s", path)
	}

	log := zap.L().With(zap.String("component", "sink"), zap.String("path", path))

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(Header()); err != nil {
			_ = f.Close()
			return nil, eris.Wrap(err, "sink: write header")
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, eris.Wrap(err, "sink: flush header")
		}
		log.Info("output file initialized")
	} else if err := terminateLastRow(path, info.Size(), f); err != nil {
		_ = f.Close()
		return nil, err
	}

	l := ledger.New()
	if err := l.Seed(path); err != nil {
		_ = f.Close()
		return nil, err
	}

	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false

	return &Sink{path: path, ledger: l, f: f, w: w, enc: enc, log: log}, nil
}

// terminateLastRow appends a newline when the file's last row lacks one, so
// the next appended row starts on its own line.
func terminateLastRow(path string, size int64, f *os.File) error {
	r, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "sink: open %s", path)
	}
	defer r.Close() //nolint:errcheck

	last := make([]byte, 1)
	if _, err := r.ReadAt(last, size-1); err != nil {
		return eris.Wrapf(err, "sink: read tail of %s", path)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return eris.Wrapf(err, "sink: terminate last row of %s", path)
	}
	zap.L().Warn("output file did not end with a newline, terminated last row", zap.String("path", path))
	return nil
}

// Ledger returns the ledger mirroring this sink's file.
func (s *Sink) Ledger() *ledger.Ledger {
	return s.ledger
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Append writes rec unless its place ID is already recorded. The ledger is
// updated only after the row reached the file. It reports whether a row was
// written.
func (s *Sink) Append(rec model.ResultRecord) (bool, error) {
	if s.ledger.Has(rec.PlaceID) {
		s.log.Debug("place already recorded, skipping", zap.String("place_id", rec.PlaceID))
		return false, nil
	}

	if err := s.enc.Encode(rec); err != nil {
		return false, eris.Wrapf(err, "sink: encode %s", rec.PlaceID)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return false, eris.Wrapf(err, "sink: write %s", rec.PlaceID)
	}

	s.ledger.Add(rec.PlaceID)
	return true, nil
}

// Close flushes and closes the output file.
func (s *Sink) Close() error {
	s.w.Flush()
	werr := s.w.Error()
	if err := s.f.Close(); err != nil {
		return eris.Wrap(err, "sink: close")
	}
	return eris.Wrap(werr, "sink: flush")
}

// ReadAll decodes every record of the output file at path.
func ReadAll(path string) ([]model.ResultRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(r)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sink: read header of %s", path)
	}

	var out []model.ResultRecord
	for {
		var rec model.ResultRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "sink: decode %s", path)
		}
		out = append(out, rec)
	}
	return out, nil
}
