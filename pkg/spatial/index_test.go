package spatial

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t testing.TB, points []float64) *Index {
	t.Helper()
	ix := NewIndex(points)
	require.NoError(t, ix.Build(context.Background(), nil))
	return ix
}

func TestQueryBeforeBuild(t *testing.T) {
	ix := NewIndex([]float64{0, 0, 10, 10})
	assert.False(t, ix.Ready())

	_, err := ix.Query(0, 0, 100)
	assert.ErrorIs(t, err, ErrIndexNotReady)

	_, err = ix.FindNearestPoint(0, 0)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestFindNearestPoint(t *testing.T) {
	// Nodes 0..2 at (0,0), (10,10), (100,100).
	ix := buildIndex(t, []float64{0, 0, 10, 10, 100, 100})
	require.True(t, ix.Ready())
	assert.Equal(t, 3, ix.Len())

	tests := []struct {
		name string
		x, y float64
		want uint32
	}{
		{"exact hit", 10, 10, 1},
		{"closer to origin", 4, 4, 0},
		{"closer to far node", 60, 60, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ix.FindNearestPoint(tt.x, tt.y)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindNearestPointTieGoesToLowerID(t *testing.T) {
	ix := buildIndex(t, []float64{10, 0, -10, 0, 0, 10})

	got, err := ix.FindNearestPoint(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)
}

func TestFindNearestPointDoublesRadius(t *testing.T) {
	// The only node is far outside the initial radius.
	ix := buildIndex(t, []float64{50_000, 0})

	got, err := ix.FindNearestPoint(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)
}

func TestFindNearestPointBudgetExhausted(t *testing.T) {
	ix := buildIndex(t, []float64{1e6, 0})

	_, err := ix.FindNearestPointWith(0, 0, NearestOptions{InitialRadius: 1, MaxDoublings: 3})
	assert.ErrorIs(t, err, ErrNoNodesInGraph)
}

func TestFindNearestPointEmptyIndex(t *testing.T) {
	ix := buildIndex(t, nil)

	_, err := ix.FindNearestPoint(0, 0)
	assert.ErrorIs(t, err, ErrNoNodesInGraph)
}

func TestQuery(t *testing.T) {
	ix := buildIndex(t, []float64{0, 0, 3, 4, 6, 8})

	ids, err := ix.Query(0, 0, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{0, 1}, ids)

	// (6, 8) is inside the search box but 10 away.
	ids, err = ix.Query(0, 0, 9)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{0, 1}, ids)
}

func TestBuildReportsProgress(t *testing.T) {
	points := make([]float64, 2*1200)
	for i := range points {
		points[i] = float64(i)
	}

	var reports [][2]int
	ix := NewIndex(points)
	require.NoError(t, ix.Build(context.Background(), func(done, total int) {
		reports = append(reports, [2]int{done, total})
	}))

	assert.Equal(t, [][2]int{{500, 1200}, {1000, 1200}, {1200, 1200}}, reports)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := NewIndex([]float64{0, 0, 1, 1})
	err := ix.Build(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ix.Ready())
}

// pausedBuild starts a build of ix whose first progress report blocks until
// release is closed. It returns once the build is running.
func pausedBuild(ctx context.Context, ix *Index, release <-chan struct{}) <-chan error {
	started := make(chan struct{})
	var once sync.Once
	errc := make(chan error, 1)
	go func() {
		errc <- ix.Build(ctx, func(done, total int) {
			once.Do(func() {
				close(started)
				<-release
			})
		})
	}()
	<-started
	return errc
}

func linePoints(n int) []float64 {
	points := make([]float64, 2*n)
	for i := range points {
		points[i] = float64(i)
	}
	return points
}

func TestConcurrentBuildsShareOne(t *testing.T) {
	ix := NewIndex(linePoints(1200))
	release := make(chan struct{})
	first := pausedBuild(context.Background(), ix, release)

	var reports int
	second := make(chan error, 1)
	go func() {
		second <- ix.Build(context.Background(), func(int, int) { reports++ })
	}()
	close(release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.True(t, ix.Ready())
	assert.Zero(t, reports, "the waiting caller does not rebuild")
}

func TestCancelledBuildHandsOver(t *testing.T) {
	ix := NewIndex(linePoints(1200))
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	first := pausedBuild(ctx, ix, release)

	var reports [][2]int
	second := make(chan error, 1)
	go func() {
		second <- ix.Build(context.Background(), func(done, total int) {
			reports = append(reports, [2]int{done, total})
		})
	}()
	cancel()
	close(release)

	require.ErrorIs(t, <-first, context.Canceled)
	require.NoError(t, <-second)
	assert.True(t, ix.Ready())
	require.NotEmpty(t, reports)
	assert.Equal(t, [2]int{1200, 1200}, reports[len(reports)-1])
}

func TestNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := make([]float64, 2*2000)
	for i := range points {
		points[i] = rng.Float64() * 20_000
	}
	ix := buildIndex(t, points)

	for q := 0; q < 200; q++ {
		x, y := rng.Float64()*20_000, rng.Float64()*20_000
		t.Run(fmt.Sprintf("query_%d", q), func(t *testing.T) {
			got, err := ix.FindNearestPoint(x, y)
			require.NoError(t, err)

			want, wantD := uint32(0), -1.0
			for n := 0; n < len(points)/2; n++ {
				dx, dy := points[2*n]-x, points[2*n+1]-y
				d := dx*dx + dy*dy
				if wantD < 0 || d < wantD {
					want, wantD = uint32(n), d
				}
			}
			assert.Equal(t, want, got)
		})
	}
}

func BenchmarkFindNearestPoint(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	points := make([]float64, 2*100_000)
	for i := range points {
		points[i] = rng.Float64() * 50_000
	}
	ix := buildIndex(b, points)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.FindNearestPoint(rng.Float64()*50_000, rng.Float64()*50_000)
	}
}
