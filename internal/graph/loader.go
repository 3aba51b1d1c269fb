package graph

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"floranav/internal/model"
)

// LoadCSV builds a graph from a node file (node_id,lat,lon) and an edge file
// (node1,node2,distance). Column order follows the header row.
func LoadCSV(nodesPath, edgesPath string) (*Graph, error) {
	g := New()

	nf, err := os.Open(nodesPath)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	defer nf.Close()
	if err := readNodes(nf, g); err != nil {
		return nil, fmt.Errorf("load nodes %s: %w", nodesPath, err)
	}

	ef, err := os.Open(edgesPath)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	defer ef.Close()
	if err := readEdges(ef, g); err != nil {
		return nil, fmt.Errorf("load edges %s: %w", edgesPath, err)
	}
	return g, nil
}

func readNodes(r io.Reader, g *Graph) error {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return err
	}
	col := columnIndex(header)
	idIdx, ok := col["node_id"]
	if !ok {
		return fmt.Errorf("missing node_id column")
	}
	latIdx, ok := col["lat"]
	if !ok {
		return fmt.Errorf("missing lat column")
	}
	lonIdx, ok := col["lon"]
	if !ok {
		return fmt.Errorf("missing lon column")
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(rec[idIdx], 10, 64)
		if err != nil {
			return fmt.Errorf("node_id %q: %w", rec[idIdx], err)
		}
		lat, err := strconv.ParseFloat(rec[latIdx], 64)
		if err != nil {
			return fmt.Errorf("lat %q: %w", rec[latIdx], err)
		}
		lon, err := strconv.ParseFloat(rec[lonIdx], 64)
		if err != nil {
			return fmt.Errorf("lon %q: %w", rec[lonIdx], err)
		}
		g.AddNode(id, model.GeoPoint{Lat: lat, Lng: lon})
	}
}

func readEdges(r io.Reader, g *Graph) error {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return err
	}
	col := columnIndex(header)
	aIdx, ok := col["node1"]
	if !ok {
		return fmt.Errorf("missing node1 column")
	}
	bIdx, ok := col["node2"]
	if !ok {
		return fmt.Errorf("missing node2 column")
	}
	dIdx, ok := col["distance"]
	if !ok {
		return fmt.Errorf("missing distance column")
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		a, err := strconv.ParseInt(rec[aIdx], 10, 64)
		if err != nil {
			return fmt.Errorf("node1 %q: %w", rec[aIdx], err)
		}
		b, err := strconv.ParseInt(rec[bIdx], 10, 64)
		if err != nil {
			return fmt.Errorf("node2 %q: %w", rec[bIdx], err)
		}
		d, err := strconv.ParseFloat(rec[dIdx], 64)
		if err != nil {
			return fmt.Errorf("distance %q: %w", rec[dIdx], err)
		}
		// AddEdge drops edges referencing unknown nodes.
		g.AddEdge(a, b, d)
	}
}

func columnIndex(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, h := range header {
		out[h] = i
	}
	return out
}
