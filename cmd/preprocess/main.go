package main

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/azybler/routeviz/pkg/graph"
	"github.com/azybler/routeviz/pkg/loader"
	osmparser "github.com/azybler/routeviz/pkg/osm"
)

// presets are named bounding boxes for common datasets.
var presets = map[string]osmparser.BBox{
	"amsterdam": {MinLat: 52.28, MaxLat: 52.43, MinLng: 4.73, MaxLng: 5.02},
	"singapore": {MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1},
	"kl":        {MinLat: 2.75, MaxLat: 3.5, MinLng: 101.2, MaxLng: 102.0},
}

var (
	input         string
	output        string
	bbox          string
	preset        string
	profile       string
	allComponents bool
)

var rootCmd = &cobra.Command{
	Use:   "preprocess --input <file.osm.pbf> [--output name" + loader.FileSuffix + "]",
	Short: "Build a routeviz graph dataset from OpenStreetMap data",
	Long: `Parses an OSM PBF extract, keeps the road network, projects it to
planar coordinates and writes a binary dataset the server can load.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&input, "input", "", "Path to .osm.pbf file")
	rootCmd.Flags().StringVar(&output, "output", "graph"+loader.FileSuffix, "Output binary graph file path")
	rootCmd.Flags().StringVar(&bbox, "bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 52.28,4.73,52.43,5.02)")
	rootCmd.Flags().StringVar(&preset, "preset", "", "Named bounding box: "+strings.Join(presetNames(), ", "))
	rootCmd.Flags().StringVar(&profile, "profile", "car", "Which highways to keep: car or all")
	rootCmd.Flags().BoolVar(&allComponents, "all-components", false, "Keep every connected component instead of the largest")
	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagsMutuallyExclusive("bbox", "preset")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func presetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func run(cmd *cobra.Command, args []string) error {
	var opts osmparser.ParseOptions
	var err error
	if opts.Profile, err = osmparser.ParseProfile(profile); err != nil {
		return err
	}

	switch {
	case preset != "":
		b, ok := presets[preset]
		if !ok {
			return fmt.Errorf("unknown preset %q (want one of %s)", preset, strings.Join(presetNames(), ", "))
		}
		opts.BBox = b
		log.Printf("Using %s bounding box filter: lat [%.2f, %.2f], lng [%.2f, %.2f]", preset, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	case bbox != "":
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			return fmt.Errorf("invalid bbox format (expected minLat,minLng,maxLat,maxLng): %w", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	log.Println("Opening OSM file...")
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	parseResult, err := osmparser.Parse(cmd.Context(), f, opts)
	if err != nil {
		return fmt.Errorf("parse OSM data: %w", err)
	}
	log.Printf("Parsed %d edges, %d nodes", len(parseResult.Edges), len(parseResult.NodeLat))

	// Step 2: Build graph.
	log.Println("Building graph...")
	g := graph.Build(parseResult)
	log.Printf("Graph: %d nodes, %d links", g.NumNodes, g.LinkCount())
	if g.NumNodes == 0 {
		return fmt.Errorf("no roads found in %s", input)
	}

	// Step 3: Extract largest connected component.
	if !allComponents {
		log.Println("Extracting largest connected component...")
		componentNodes := graph.LargestComponent(g)
		log.Printf("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(g.NumNodes)*100)
		g = graph.FilterToComponent(g, componentNodes)
		log.Printf("Filtered graph: %d nodes, %d links", g.NumNodes, g.LinkCount())
	}

	// Step 4: Serialize to binary.
	log.Printf("Writing binary to %s...", output)
	if err := graph.WriteBinary(output, g); err != nil {
		return fmt.Errorf("write binary: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), output, float64(info.Size())/(1024*1024))
	return nil
}
