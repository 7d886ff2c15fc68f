package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/azybler/routeviz/pkg/graph"
	"github.com/azybler/routeviz/pkg/routing"
)

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

var (
	graphPath string
	fromID    uint32
	toID      uint32
	pairs     int
	seed      uint64
)

var rootCmd = &cobra.Command{
	Use:   "route --graph <file.graph.bin> (--from N --to M | --pairs K)",
	Short: "Compare pathfinding strategies on a graph dataset",
	Long: `Runs every pathfinding strategy on the same queries and prints path
lengths and timings side by side. Lengths that differ from Dijkstra's are
flagged.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&graphPath, "graph", "", "Path to a preprocessed graph dataset")
	rootCmd.Flags().Uint32Var(&fromID, "from", 0, "Start node id")
	rootCmd.Flags().Uint32Var(&toID, "to", 0, "End node id")
	rootCmd.Flags().IntVar(&pairs, "pairs", 0, "Compare on this many random node pairs instead of --from/--to")
	rootCmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed for --pairs")
	rootCmd.MarkFlagRequired("graph")
	rootCmd.MarkFlagsMutuallyExclusive("pairs", "from")
	rootCmd.MarkFlagsMutuallyExclusive("pairs", "to")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	start := time.Now()
	g, err := graph.ReadBinary(graphPath)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	reg := routing.NewRegistry(g, routing.Options{})
	fmt.Printf("%s %s: %d nodes, %d links %s\n\n", brand.Sprint("routeviz"), graphPath,
		g.NumNodes, g.LinkCount(), subtle.Sprintf("(%s)", time.Since(start).Round(time.Millisecond)))

	if pairs > 0 {
		return comparePairs(cmd.Context(), reg)
	}
	return compareOne(cmd.Context(), reg, fromID, toID)
}

type outcome struct {
	kind   routing.Kind
	nodes  int
	length float64
	took   time.Duration
	err    error
}

func runAll(ctx context.Context, reg *routing.Registry, from, to uint32) ([]outcome, error) {
	var out []outcome
	for _, kind := range routing.Kinds() {
		s, err := reg.Get(kind)
		if err != nil {
			return nil, err
		}
		began := time.Now()
		path, err := s.Find(ctx, from, to)
		out = append(out, outcome{
			kind:   kind,
			nodes:  len(path),
			length: routing.PathLength(reg.Graph(), path),
			took:   time.Since(began),
			err:    err,
		})
	}
	return out, nil
}

// reference returns the Dijkstra length, or -1 when there is no path.
func reference(results []outcome) float64 {
	for _, r := range results {
		if r.kind == routing.KindDijkstra && r.err == nil && r.nodes > 0 {
			return r.length
		}
	}
	return -1
}

func compareOne(ctx context.Context, reg *routing.Registry, from, to uint32) error {
	results, err := runAll(ctx, reg, from, to)
	if err != nil {
		return err
	}
	best := reference(results)

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := good.Sprint("optimal")
		switch {
		case r.err != nil:
			status = bad.Sprint(r.err.Error())
		case r.nodes == 0:
			status = warn.Sprint("no path")
		case !sameLength(r.length, best):
			status = warn.Sprintf("+%.1f%%", (r.length/best-1)*100)
		}
		rows = append(rows, []string{
			string(r.kind),
			fmt.Sprint(r.nodes),
			fmt.Sprintf("%.1f", r.length),
			r.took.Round(time.Microsecond).String(),
			status,
		})
	}
	fmt.Printf("%d -> %d\n", from, to)
	table([]string{"FINDER", "NODES", "LENGTH", "TOOK", "RESULT"}, rows)
	return nil
}

func comparePairs(ctx context.Context, reg *routing.Registry) error {
	n := reg.Graph().NumNodes
	if n < 2 {
		return fmt.Errorf("graph has %d nodes, need at least 2", n)
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	type tally struct {
		took       time.Duration
		suboptimal int
		failed     int
	}
	totals := make(map[routing.Kind]*tally)
	for _, kind := range routing.Kinds() {
		totals[kind] = &tally{}
	}

	var reachable int
	for i := 0; i < pairs; i++ {
		from, to := rng.Uint32N(n), rng.Uint32N(n)
		results, err := runAll(ctx, reg, from, to)
		if err != nil {
			return err
		}
		best := reference(results)
		if best >= 0 {
			reachable++
		}
		for _, r := range results {
			t := totals[r.kind]
			t.took += r.took
			switch {
			case r.err != nil:
				t.failed++
			case best >= 0 && !sameLength(r.length, best):
				t.suboptimal++
			}
		}
	}

	rows := make([][]string, 0, len(totals))
	for _, kind := range routing.Kinds() {
		t := totals[kind]
		sub := good.Sprint("0")
		if t.suboptimal > 0 {
			sub = warn.Sprint(t.suboptimal)
		}
		failed := good.Sprint("0")
		if t.failed > 0 {
			failed = bad.Sprint(t.failed)
		}
		rows = append(rows, []string{
			string(kind),
			(t.took / time.Duration(pairs)).Round(time.Microsecond).String(),
			sub,
			failed,
		})
	}
	fmt.Printf("%d random pairs, %d reachable\n", pairs, reachable)
	table([]string{"FINDER", "AVG TOOK", "SUBOPTIMAL", "FAILED"}, rows)
	return nil
}

func sameLength(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, b)
}

// table prints an aligned table. Widths ignore color escape codes.
func table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := visibleLen(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var header, sep strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&header, "  %-*s", widths[i], h)
		sep.WriteString("  " + strings.Repeat("─", widths[i]))
	}
	subtle.Println(header.String())
	subtle.Println(sep.String())
	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			line.WriteString("  " + cell + strings.Repeat(" ", widths[i]-visibleLen(cell)))
		}
		fmt.Println(line.String())
	}
}

func visibleLen(s string) int {
	n, esc := 0, false
	for _, r := range s {
		switch {
		case r == '\x1b':
			esc = true
		case esc:
			if r == 'm' {
				esc = false
			}
		default:
			n++
		}
	}
	return n
}
