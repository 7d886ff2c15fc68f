package osm

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/azybler/routeviz/pkg/geo"
)

// RawEdge is an undirected road segment between two consecutive way nodes.
type RawEdge struct {
	FromNodeID   osm.NodeID
	ToNodeID     osm.NodeID
	LengthMeters float64 // great-circle length, for reporting only
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges       []RawEdge
	NodeLat     map[osm.NodeID]float64
	NodeLon     map[osm.NodeID]float64
	TotalMeters float64
}

// Profile selects which highways become graph edges.
type Profile int

const (
	// ProfileCar keeps roads drivable by car.
	ProfileCar Profile = iota
	// ProfileAll keeps every highway, including footways and cycleways.
	ProfileAll
)

// ParseProfile maps a flag value to a Profile.
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "", "car":
		return ProfileCar, nil
	case "all":
		return ProfileAll, nil
	}
	return ProfileCar, fmt.Errorf("unknown profile %q (want car or all)", s)
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// isRoad reports whether the way belongs in the graph under the profile.
func isRoad(tags osm.Tags, profile Profile) bool {
	hw := tags.Find("highway")
	if hw == "" {
		return false
	}

	// Area highways (pedestrian plazas) are polygons, not segments.
	if tags.Find("area") == "yes" {
		return false
	}

	if profile == ProfileAll {
		return true
	}
	return isCarAccessible(tags)
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	if !carHighways[tags.Find("highway")] {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox    BBox // if non-zero, filter edges to this bounding box
	Profile Profile
}

// Parse reads an OSM PBF file and returns undirected road segments.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: Scan ways to collect referenced node IDs.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways [][]osm.NodeID

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if len(w.Nodes) < 2 || !isRoad(w.Tags, opt.Profile) {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, nodeIDs)
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(nodeLat))

	result := &ParseResult{NodeLat: nodeLat, NodeLon: nodeLon}
	var skippedEdges, bboxFiltered int

	for _, nodeIDs := range ways {
		for i := 0; i < len(nodeIDs)-1; i++ {
			fromID, toID := nodeIDs[i], nodeIDs[i+1]
			if fromID == toID {
				continue
			}

			fromLat, fromOk := nodeLat[fromID]
			toLat, toOk := nodeLat[toID]
			if !fromOk || !toOk {
				skippedEdges++
				continue
			}
			fromLon, toLon := nodeLon[fromID], nodeLon[toID]

			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				bboxFiltered++
				continue
			}

			length := geo.Haversine(fromLat, fromLon, toLat, toLon)
			result.TotalMeters += length
			result.Edges = append(result.Edges, RawEdge{
				FromNodeID:   fromID,
				ToNodeID:     toID,
				LengthMeters: length,
			})
		}
	}

	if skippedEdges > 0 {
		log.Printf("Warning: skipped %d edges due to missing node coordinates", skippedEdges)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d edges outside bounding box", bboxFiltered)
	}
	log.Printf("Built %d road segments (%.1f km)", len(result.Edges), result.TotalMeters/1000)

	return result, nil
}
