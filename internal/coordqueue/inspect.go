package coordqueue

import (
	"errors"
	"os"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/places-crawler/internal/model"
)

// Progress is a read-only view of a region's queue.
type Progress struct {
	Total       int // data rows in the original input
	Remaining   []model.Coordinate
	StoreExists bool
	Bound       orb.Bound
}

// Inspect reports queue progress without creating or rewriting the store.
// Without a store every input row counts as remaining.
func Inspect(opts Options) (*Progress, error) {
	_, inputEntries, err := readInput(opts.InputPath)
	if err != nil {
		return nil, err
	}

	p := &Progress{Total: len(inputEntries)}
	entries := inputEntries

	if _, err := os.Stat(opts.ResumePath); err == nil {
		p.StoreExists = true
		_, stored, serr := readStore(opts.ResumePath)
		if serr != nil {
			return nil, serr
		}
		// An empty or unrecognized store is re-snapshotted by Load.
		if len(stored) > 0 {
			entries = stored
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrapf(err, "coordqueue: stat %s", opts.ResumePath)
	}

	for _, e := range entries {
		c, err := parseCoordinate(e, opts)
		if err != nil {
			continue
		}
		p.Remaining = append(p.Remaining, c)
	}
	p.Bound = bound(p.Remaining)
	return p, nil
}
