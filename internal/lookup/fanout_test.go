package lookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client. Details for ids in failing return an
// upstream error; delay slows every Details call.
type fakeClient struct {
	mu       sync.Mutex
	search   map[string][]model.SearchResult
	details  map[string]model.SearchResult
	failing  map[string]bool
	delay    time.Duration
	searches int
	detailN  int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeClient) Search(_ context.Context, title string) ([]model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	r, ok := f.search[title]
	if !ok {
		return nil, apperror.NotFoundMessage("no movies found")
	}
	return append([]model.SearchResult(nil), r...), nil
}

func (f *fakeClient) Details(ctx context.Context, id string) (*model.SearchResult, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailN++
	if f.failing[id] {
		return nil, apperror.Upstream("boom", nil)
	}
	d, ok := f.details[id]
	if !ok {
		return nil, apperror.NotFound("movie", id)
	}
	return &d, nil
}

func matrixFake() *fakeClient {
	return &fakeClient{
		search: map[string][]model.SearchResult{
			"Matrix": {
				{ExternalID: "tt0133093", Title: "The Matrix", Year: "1999"},
				{ExternalID: "tt0234215", Title: "The Matrix Reloaded", Year: "2003"},
				{ExternalID: "tt0242653", Title: "The Matrix Revolutions", Year: "2003"},
			},
		},
		details: map[string]model.SearchResult{
			"tt0133093": {ExternalID: "tt0133093", Title: "The Matrix", Year: "1999", Genre: "Sci-Fi", Runtime: "136 min", Director: "Wachowski"},
			"tt0234215": {ExternalID: "tt0234215", Title: "The Matrix Reloaded", Year: "2003", Genre: "Sci-Fi", Runtime: "138 min"},
			"tt0242653": {ExternalID: "tt0242653", Title: "The Matrix Revolutions", Year: "2003", Genre: "Sci-Fi", Runtime: "129 min"},
		},
		failing: map[string]bool{},
	}
}

func TestSearchWithDetails_KeepsRankingOrder(t *testing.T) {
	f := matrixFake()
	f.delay = 5 * time.Millisecond

	results, err := SearchWithDetails(context.Background(), f, "Matrix", 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "tt0133093", results[0].ExternalID)
	assert.Equal(t, "tt0234215", results[1].ExternalID)
	assert.Equal(t, "tt0242653", results[2].ExternalID)
	assert.Equal(t, "136 min", results[0].Runtime)
	assert.LessOrEqual(t, f.maxInflight.Load(), int32(2))
}

func TestSearchWithDetails_DetailFailureFallsBack(t *testing.T) {
	f := matrixFake()
	f.failing["tt0234215"] = true

	results, err := SearchWithDetails(context.Background(), f, "Matrix", 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "The Matrix Reloaded", results[1].Title)
	assert.Equal(t, "", results[1].Runtime, "summary only")
	assert.Equal(t, "129 min", results[2].Runtime)
}

func TestSearchWithDetails_SearchNotFound(t *testing.T) {
	_, err := SearchWithDetails(context.Background(), matrixFake(), "Nothing", 0)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSearchWithDetails_Cancelled(t *testing.T) {
	f := matrixFake()
	f.delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := SearchWithDetails(ctx, f, "Matrix", 0)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}
