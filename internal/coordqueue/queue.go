// Package coordqueue loads a region's coordinate list and keeps a resumable
// working copy of it on disk, so an interrupted crawl picks up where it
// stopped.
//
// The original input file is never modified. On first load it is snapshotted
// into the resume store (input path + suffix), whose rows carry the input row
// index as their identity. Completed coordinates are removed from the store
// one at a time; each removal rewrites the whole store through a temp file and
// rename.
package coordqueue

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/model"
)

// rowColumn is the identity column prepended to the store's header.
const rowColumn = "row"

// Options describes the queue's files and the values stamped on every
// coordinate it yields.
type Options struct {
	InputPath  string
	ResumePath string
	Region     string
	Zoom       int
}

type entry struct {
	row    int
	fields []string
}

// Queue is the resume store of one region.
type Queue struct {
	opts    Options
	header  []string
	entries []entry
	coords  map[int]model.Coordinate
}

// Load opens the resume store for opts, creating it from the input on the
// first run or when it holds no data rows.
func Load(opts Options) (*Queue, error) {
	log := zap.L().With(zap.String("component", "coordqueue"), zap.String("region", opts.Region))

	if _, err := os.Stat(opts.InputPath); err != nil {
		return nil, eris.Wrapf(err, "coordqueue: input %s", opts.InputPath)
	}

	if _, err := os.Stat(opts.ResumePath); errors.Is(err, os.ErrNotExist) {
		if err := snapshot(opts.InputPath, opts.ResumePath); err != nil {
			return nil, err
		}
		log.Info("resume store created", zap.String("path", opts.ResumePath))
	} else if err != nil {
		return nil, eris.Wrapf(err, "coordqueue: stat %s", opts.ResumePath)
	}

	header, entries, err := readStore(opts.ResumePath)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		log.Warn("resume store has no data rows, recreating from input", zap.String("path", opts.ResumePath))
		if err := snapshot(opts.InputPath, opts.ResumePath); err != nil {
			return nil, err
		}
		if header, entries, err = readStore(opts.ResumePath); err != nil {
			return nil, err
		}
	}

	q := &Queue{opts: opts, header: header, coords: make(map[int]model.Coordinate, len(entries))}

	dropped := 0
	for _, e := range entries {
		c, err := parseCoordinate(e, opts)
		if err != nil {
			log.Warn("dropping malformed coordinate row",
				zap.Int("row", e.row),
				zap.String("line", strings.Join(e.fields, ",")),
				zap.Error(err),
			)
			dropped++
			continue
		}
		q.entries = append(q.entries, e)
		q.coords[e.row] = c
	}

	if dropped > 0 {
		if err := q.persist(); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// Coordinates returns the remaining coordinates in traversal order: front,
// back, front, back, ... of the stored list.
func (q *Queue) Coordinates() []model.Coordinate {
	return interleave(q.list())
}

// Remaining is the number of coordinates still in the store.
func (q *Queue) Remaining() int {
	return len(q.entries)
}

// Bound is the bounding box of the remaining coordinates.
func (q *Queue) Bound() orb.Bound {
	return bound(q.list())
}

// Consume removes c from the store and persists the result.
func (q *Queue) Consume(c model.Coordinate) error {
	idx := -1
	for i, e := range q.entries {
		if e.row == c.Row {
			idx = i
			break
		}
	}
	if idx < 0 {
		return eris.Errorf("coordqueue: row %d not in queue", c.Row)
	}

	remaining := make([]entry, 0, len(q.entries)-1)
	remaining = append(remaining, q.entries[:idx]...)
	remaining = append(remaining, q.entries[idx+1:]...)

	prev := q.entries
	q.entries = remaining
	if err := q.persist(); err != nil {
		q.entries = prev
		return err
	}
	delete(q.coords, c.Row)
	return nil
}

// Drop deletes the resume store. The original input is left in place.
func (q *Queue) Drop() error {
	if err := os.Remove(q.opts.ResumePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "coordqueue: remove %s", q.opts.ResumePath)
	}
	return nil
}

func (q *Queue) list() []model.Coordinate {
	out := make([]model.Coordinate, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, q.coords[e.row])
	}
	return out
}

func (q *Queue) persist() error {
	return writeStore(q.opts.ResumePath, q.header, q.entries)
}

func interleave(list []model.Coordinate) []model.Coordinate {
	out := make([]model.Coordinate, 0, len(list))
	front, back := 0, len(list)-1
	for front <= back {
		out = append(out, list[front])
		front++
		if front <= back {
			out = append(out, list[back])
			back--
		}
	}
	return out
}

func bound(list []model.Coordinate) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(list))
	for _, c := range list {
		mp = append(mp, c.Point())
	}
	return mp.Bound()
}

func parseCoordinate(e entry, opts Options) (model.Coordinate, error) {
	if len(e.fields) < 2 {
		return model.Coordinate{}, eris.Errorf("coordqueue: row %d has %d fields, want latitude,longitude", e.row, len(e.fields))
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(e.fields[0]), 64)
	if err != nil {
		return model.Coordinate{}, eris.Wrapf(err, "coordqueue: row %d latitude", e.row)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(e.fields[1]), 64)
	if err != nil {
		return model.Coordinate{}, eris.Wrapf(err, "coordqueue: row %d longitude", e.row)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return model.Coordinate{}, eris.Errorf("coordqueue: row %d out of range (%v, %v)", e.row, lat, lon)
	}
	return model.Coordinate{
		Latitude:   lat,
		Longitude:  lon,
		Zoom:       opts.Zoom,
		Region:     opts.Region,
		SourceLine: strings.Join(e.fields, ","),
		Row:        e.row,
	}, nil
}

// readInput parses the original input: header row first, then data rows
// numbered from 1.
func readInput(path string) ([]string, []entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "coordqueue: open input %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := readAll(f)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "coordqueue: read input %s", path)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	entries := make([]entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		entries = append(entries, entry{row: i + 1, fields: rec})
	}
	return records[0], entries, nil
}

// readStore parses the resume store. Its header and rows carry the row
// identity as their first column.
func readStore(path string) ([]string, []entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "coordqueue: open store %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := readAll(f)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "coordqueue: read store %s", path)
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != rowColumn {
		// Unrecognized or empty store: treated as drained so Load re-snapshots it.
		return nil, nil, nil
	}

	header := records[0][1:]
	entries := make([]entry, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row, err := strconv.Atoi(rec[0])
		if err != nil || row < 1 {
			zap.L().Warn("coordqueue: skipping store row with bad identity",
				zap.String("path", path),
				zap.String("row", rec[0]),
			)
			continue
		}
		entries = append(entries, entry{row: row, fields: rec[1:]})
	}
	return header, entries, nil
}

// readAll reads every record of r. A record that fails to parse is kept as
// an empty record so row numbering is unchanged; callers skip it as blank.
func readAll(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			zap.L().Warn("coordqueue: skipping unparsable line",
				zap.Int("line", perr.StartLine),
				zap.Error(err),
			)
			records = append(records, []string{})
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func snapshot(inputPath, storePath string) error {
	header, entries, err := readInput(inputPath)
	if err != nil {
		return err
	}
	return writeStore(storePath, header, entries)
}

func writeStore(path string, header []string, entries []entry) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "coordqueue: create temp for %s", path)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(append([]string{rowColumn}, header...)); err != nil {
		cleanup()
		return eris.Wrap(err, "coordqueue: write store header")
	}
	for _, e := range entries {
		if err := w.Write(append([]string{strconv.Itoa(e.row)}, e.fields...)); err != nil {
			cleanup()
			return eris.Wrapf(err, "coordqueue: write store row %d", e.row)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return eris.Wrap(err, "coordqueue: flush store")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return eris.Wrap(err, "coordqueue: sync store")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "coordqueue: close store")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "coordqueue: replace %s", path)
	}
	return nil
}
