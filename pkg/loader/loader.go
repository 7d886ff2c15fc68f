// Package loader fetches preprocessed graph datasets by name.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"

	"github.com/azybler/routeviz/pkg/graph"
	"github.com/azybler/routeviz/pkg/spatial"
)

// ErrGraphNotFound is returned when no dataset exists under the given name.
var ErrGraphNotFound = errors.New("graph not found")

// FileSuffix is appended to a dataset name to form its file or object name.
const FileSuffix = ".graph.bin"

// Progress is a loading progress report. Total is zero when the size is
// unknown.
type Progress struct {
	Message string
	Done    int64
	Total   int64
}

// ProgressSink receives progress reports. It may be nil.
type ProgressSink func(Progress)

// Loaded is a ready-to-use dataset.
type Loaded struct {
	Graph *graph.Graph
	BBox  orb.Bound
	// Points is the flat coordinate array [x0, y0, x1, y1, ...] the spatial
	// index is built from. Flat index i belongs to node i/2.
	Points []float64
	// Index is the nearest-point index over Points. It starts unbuilt;
	// everyone sharing this Loaded shares one build.
	Index *spatial.Index
}

// NewLoaded derives the bounding box, point array and unbuilt index from g.
func NewLoaded(g *graph.Graph) *Loaded {
	points := g.Points()
	return &Loaded{
		Graph:  g,
		BBox:   g.Bound(),
		Points: points,
		Index:  spatial.NewIndex(points),
	}
}

// Loader fetches a dataset by name.
type Loader interface {
	Load(ctx context.Context, name string, sink ProgressSink) (*Loaded, error)
}

// decode reads a graph from r, reporting read progress to sink.
func decode(ctx context.Context, name string, r io.Reader, size int64, sink ProgressSink) (*Loaded, error) {
	pr := &progressReader{ctx: ctx, r: r, total: size, sink: sink, message: "Loading " + name}
	g, err := graph.Decode(pr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if sink != nil {
		sink(Progress{Message: "Loaded " + name, Done: pr.done, Total: pr.done})
	}
	return NewLoaded(g), nil
}

// progressReader reports every progressStep bytes and stops on ctx
// cancellation.
type progressReader struct {
	ctx     context.Context
	r       io.Reader
	sink    ProgressSink
	message string

	done, total, lastReport int64
}

const progressStep = 1 << 20

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.r.Read(p)
	pr.done += int64(n)
	if pr.sink != nil && pr.done-pr.lastReport >= progressStep {
		pr.lastReport = pr.done
		pr.sink(Progress{Message: pr.message, Done: pr.done, Total: pr.total})
	}
	return n, err
}
