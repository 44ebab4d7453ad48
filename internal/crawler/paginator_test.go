package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/places-crawler/internal/model"
	"github.com/sells-group/places-crawler/internal/resilience"
	"github.com/sells-group/places-crawler/pkg/valueserp"
	"github.com/sells-group/places-crawler/pkg/valueserp/mocks"
)

// memWriter mimics the sink: it records each place ID once.
type memWriter struct {
	seen    map[string]bool
	written []model.ResultRecord
	failOn  func(model.ResultRecord) bool
}

func newMemWriter(known ...string) *memWriter {
	w := &memWriter{seen: make(map[string]bool)}
	for _, id := range known {
		w.seen[id] = true
	}
	return w
}

func (w *memWriter) Append(rec model.ResultRecord) (bool, error) {
	if w.failOn != nil && w.failOn(rec) {
		return false, errors.New("disk full")
	}
	if w.seen[rec.PlaceID] {
		return false, nil
	}
	w.seen[rec.PlaceID] = true
	w.written = append(w.written, rec)
	return true, nil
}

func places(ids ...string) []valueserp.PlaceResult {
	out := make([]valueserp.PlaceResult, len(ids))
	for i, id := range ids {
		out[i] = valueserp.PlaceResult{Position: i + 1, Title: "Loja " + id, PlaceID: id}
	}
	return out
}

func seq(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func testCoord() model.Coordinate {
	return model.Coordinate{Latitude: -7.1, Longitude: -34.8, Zoom: 15, Region: "paraiba", Row: 1}
}

// expectPages registers one response per page for query and fails the test
// on any request beyond them.
func expectPages(m *mocks.MockClient, query string, pages ...[]valueserp.PlaceResult) {
	for i, p := range pages {
		page := i + 1
		m.On("Search", mock.Anything, mock.MatchedBy(func(r valueserp.SearchRequest) bool {
			return r.Query == query && r.Page == page
		})).Return(&valueserp.SearchResponse{
			RequestInfo:   valueserp.RequestInfo{Success: true, CreditsRemaining: 1000 - page},
			PlacesResults: p,
		}, nil).Once()
	}
}

func testLimits(pageSize, dupLimit int) Limits {
	return Limits{PageSize: pageSize, DupIDLimit: dupLimit, FullDupPageLimit: 3}
}

func TestPaginator_StopsAfterFullDuplicateStreak(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "celular",
		places("n1", "d1"),
		places("n2", "d2"),
		places("d3", "d4"),
		places("d5", "d6"),
		places("d7", "d8"),
	)
	w := newMemWriter(seq("d", 8)...)

	p := NewPaginator(NewSearcher(m), w, testLimits(2, 100))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 8, res.Duplicates)
	assert.Equal(t, 3, res.State.ConsecutiveFullDuplicatePages)
	assert.Equal(t, StopFullDupStreak, res.StopReason)
}

func TestPaginator_NewIDResetsStreak(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "celular",
		places("d1", "d2"),
		places("d3", "d4"),
		places("n1", "d5"),
		places("d6", "d7"),
		places("d8"),
	)
	w := newMemWriter(seq("d", 8)...)

	p := NewPaginator(NewSearcher(m), w, testLimits(2, 100))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, StopShortPage, res.StopReason)
	assert.Equal(t, 2, res.State.ConsecutiveFullDuplicatePages)
}

func TestPaginator_ShortPageStops(t *testing.T) {
	m := mocks.NewMockClient(t)
	ids := append(seq("n", 10), seq("d", 5)...)
	expectPages(m, "celular", places(ids...))
	w := newMemWriter(seq("d", 5)...)

	p := NewPaginator(NewSearcher(m), w, testLimits(20, 19))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 10, res.Written)
	assert.Equal(t, StopShortPage, res.StopReason)
}

func TestPaginator_DuplicateBudgetStops(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "celular",
		places(append(seq("a", 10), seq("d", 10)...)...),
		places(append(seq("b", 10), seq("e", 10)...)...),
	)
	known := append(seq("d", 10), seq("e", 10)...)
	w := newMemWriter(known...)

	p := NewPaginator(NewSearcher(m), w, testLimits(20, 19))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 20, res.State.DuplicateCount)
	assert.Zero(t, res.State.ConsecutiveFullDuplicatePages)
	assert.Equal(t, StopDupBudget, res.StopReason)
}

func TestPaginator_ContinuesOnFullNewPages(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "iphone",
		places("a1", "a2"),
		places("b1", "b2"),
		places("c1"),
	)
	w := newMemWriter()

	p := NewPaginator(NewSearcher(m), w, testLimits(2, 19))
	res, err := p.Run(context.Background(), testCoord(), "iphone")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.State.Page)
	assert.Len(t, w.written, 5)
}

func TestPaginator_SoftFailureStops(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("Search", mock.Anything, mock.Anything).
		Return(nil, &valueserp.StatusError{StatusCode: 503, Body: "busy"}).Once()

	p := NewPaginator(NewSearcher(m), newMemWriter(), testLimits(20, 19))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Zero(t, res.Pages)
	assert.Equal(t, StopNoResults, res.StopReason)
}

func TestPaginator_MissingPlacesResultsStops(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("Search", mock.Anything, mock.Anything).
		Return(&valueserp.SearchResponse{RequestInfo: valueserp.RequestInfo{Success: true}}, nil).Once()

	p := NewPaginator(NewSearcher(m), newMemWriter(), testLimits(20, 19))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)
	assert.Equal(t, StopNoResults, res.StopReason)
}

func TestPaginator_FatalErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"unauthorized", valueserp.ErrUnauthorized, "unauthorized"},
		{"quota", valueserp.ErrQuotaExhausted, "quota exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mocks.NewMockClient(t)
			m.On("Search", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			p := NewPaginator(NewSearcher(m), newMemWriter(), testLimits(20, 19))
			_, err := p.Run(context.Background(), testCoord(), "celular")
			require.Error(t, err)
			assert.True(t, resilience.IsFatal(err))
			assert.Equal(t, tt.reason, resilience.FatalReason(err))
		})
	}
}

func TestPaginator_SkipsItemsWithoutPlaceID(t *testing.T) {
	m := mocks.NewMockClient(t)
	batch := places("n1", "", "  ", "n2")
	expectPages(m, "celular", batch)
	w := newMemWriter()

	p := NewPaginator(NewSearcher(m), w, testLimits(20, 19))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.Written)
}

func TestPaginator_PageWithOnlyMissingIDsIsNotFullDuplicate(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "celular",
		places("", ""),
		places("n1"),
	)

	p := NewPaginator(NewSearcher(m), newMemWriter(), testLimits(2, 19))
	res, err := p.Run(context.Background(), testCoord(), "celular")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Zero(t, res.State.ConsecutiveFullDuplicatePages)
}

func TestPaginator_WriteFailure(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "celular", places("n1"))
	w := newMemWriter()
	w.failOn = func(model.ResultRecord) bool { return true }

	p := NewPaginator(NewSearcher(m), w, testLimits(20, 19))
	_, err := p.Run(context.Background(), testCoord(), "celular")
	require.Error(t, err)
	assert.False(t, resilience.IsFatal(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestPaginator_CancelledDuringDelay(t *testing.T) {
	m := mocks.NewMockClient(t)
	expectPages(m, "celular", places("n1", "n2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limits := testLimits(2, 19)
	limits.PageDelay = time.Hour
	p := NewPaginator(NewSearcher(m), newMemWriter(), limits)

	start := time.Now()
	_, err := p.Run(ctx, testCoord(), "celular")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestPaginator_RequestShape(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("Search", mock.Anything, valueserp.SearchRequest{
		Query: "iphone", Latitude: -7.1, Longitude: -34.8, Zoom: 15, Page: 1,
	}).Return(&valueserp.SearchResponse{PlacesResults: places("n1")}, nil).Once()

	p := NewPaginator(NewSearcher(m), newMemWriter(), DefaultLimits())
	_, err := p.Run(context.Background(), testCoord(), "iphone")
	require.NoError(t, err)
}

func TestToRecord(t *testing.T) {
	rating := 4.7
	reviews := 31
	item := valueserp.PlaceResult{
		Position:       3,
		Title:          "Cell Center",
		PlaceID:        "ChIJ-1",
		Address:        "Av. Epitácio Pessoa, 100",
		Phone:          "+55 83 0000-0000",
		Rating:         &rating,
		Reviews:        &reviews,
		GPSCoordinates: &valueserp.GPSCoordinates{Latitude: -7.11, Longitude: -34.85},
	}

	rec := toRecord(item, "paraiba")
	assert.Equal(t, 3, rec.Position)
	assert.Equal(t, model.NotAvailable, rec.City)
	assert.Equal(t, model.NotAvailable, rec.State)
	assert.Equal(t, "paraiba", rec.Region)
	require.NotNil(t, rec.Latitude)
	assert.InDelta(t, -7.11, *rec.Latitude, 1e-9)
	assert.InDelta(t, -34.85, *rec.Longitude, 1e-9)
	assert.Equal(t, 4.7, *rec.Rating)

	item.City, item.State, item.GPSCoordinates = "João Pessoa", "PB", nil
	rec = toRecord(item, "paraiba")
	assert.Equal(t, "João Pessoa", rec.City)
	assert.Equal(t, "PB", rec.State)
	assert.Nil(t, rec.Latitude)
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 20, l.PageSize)
	assert.Equal(t, 19, l.DupIDLimit)
	assert.Equal(t, 3, l.FullDupPageLimit)
	assert.Equal(t, time.Second, l.PageDelay)
}
