// Package lineage implements the dbt dependency-graph view, the
// expensive stateful view the persistent slot mechanism exists for.
// Building the view walks and validates the whole artifact graph, so a
// session constructs it once; afterwards the accumulated viewport,
// selection, and column expansions survive every navigation because the
// view is hidden rather than unmounted.
package lineage

import (
	"errors"
	"fmt"
	"sort"
)

// NodeType classifies lineage graph nodes by dbt resource type.
type NodeType string

const (
	NodeModel  NodeType = "model"
	NodeSeed   NodeType = "seed"
	NodeSource NodeType = "source"
	NodeMetric NodeType = "metric"
)

// Column describes one column of a node's schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Node is one vertex of the dependency graph. Row and Col are grid
// positions precomputed by the artifact pipeline; no layout runs here.
type Node struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    NodeType `json:"type"`
	Row     int      `json:"row"`
	Col     int      `json:"col"`
	Columns []Column `json:"columns,omitempty"`
}

// Edge is a directed dependency: From feeds To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a validated dbt dependency graph.
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int
}

// ErrEmptyGraph is returned when a graph has no nodes.
var ErrEmptyGraph = errors.New("lineage: graph has no nodes")

// NewGraph validates nodes and edges and builds a Graph. Duplicate node
// IDs and edges referencing unknown nodes are artifact corruption and
// fail construction.
func NewGraph(nodes []Node, edges []Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("lineage: node %d has empty id", i)
		}
		if _, exists := index[n.ID]; exists {
			return nil, fmt.Errorf("lineage: duplicate node id %q", n.ID)
		}
		index[n.ID] = i
	}

	for _, e := range edges {
		if _, ok := index[e.From]; !ok {
			return nil, fmt.Errorf("lineage: edge %s -> %s references unknown node %q", e.From, e.To, e.From)
		}
		if _, ok := index[e.To]; !ok {
			return nil, fmt.Errorf("lineage: edge %s -> %s references unknown node %q", e.From, e.To, e.To)
		}
	}

	return &Graph{
		nodes: nodes,
		edges: edges,
		index: index,
	}, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the graph's nodes in artifact order.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Edges returns the graph's edges.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Upstream returns the IDs of nodes feeding into id, sorted.
func (g *Graph) Upstream(id string) []string {
	var ids []string
	for _, e := range g.edges {
		if e.To == id {
			ids = append(ids, e.From)
		}
	}
	sort.Strings(ids)
	return ids
}

// Downstream returns the IDs of nodes fed by id, sorted.
func (g *Graph) Downstream(id string) []string {
	var ids []string
	for _, e := range g.edges {
		if e.From == id {
			ids = append(ids, e.To)
		}
	}
	sort.Strings(ids)
	return ids
}

// DemoGraph returns the built-in demo graph used when no artifact
// source is configured: a small retail dbt project with sources,
// staging models, marts, one seed, and one metric.
func DemoGraph() *Graph {
	nodes := []Node{
		{ID: "source.raw_orders", Name: "raw_orders", Type: NodeSource, Row: 0, Col: 0,
			Columns: []Column{{Name: "id", Type: "integer"}, {Name: "customer_id", Type: "integer"}, {Name: "ordered_at", Type: "timestamp"}, {Name: "amount", Type: "numeric"}}},
		{ID: "source.raw_customers", Name: "raw_customers", Type: NodeSource, Row: 1, Col: 0,
			Columns: []Column{{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}, {Name: "country", Type: "text"}}},
		{ID: "seed.country_codes", Name: "country_codes", Type: NodeSeed, Row: 2, Col: 0,
			Columns: []Column{{Name: "code", Type: "text"}, {Name: "name", Type: "text"}}},
		{ID: "model.stg_orders", Name: "stg_orders", Type: NodeModel, Row: 0, Col: 1,
			Columns: []Column{{Name: "order_id", Type: "integer"}, {Name: "customer_id", Type: "integer"}, {Name: "ordered_at", Type: "timestamp"}, {Name: "amount", Type: "numeric"}}},
		{ID: "model.stg_customers", Name: "stg_customers", Type: NodeModel, Row: 1, Col: 1,
			Columns: []Column{{Name: "customer_id", Type: "integer"}, {Name: "customer_name", Type: "text"}, {Name: "country_code", Type: "text"}}},
		{ID: "model.fct_sales", Name: "fct_sales", Type: NodeModel, Row: 0, Col: 2,
			Columns: []Column{{Name: "order_id", Type: "integer"}, {Name: "customer_id", Type: "integer"}, {Name: "amount", Type: "numeric"}}},
		{ID: "model.dim_customers", Name: "dim_customers", Type: NodeModel, Row: 1, Col: 2,
			Columns: []Column{{Name: "customer_id", Type: "integer"}, {Name: "customer_name", Type: "text"}, {Name: "country", Type: "text"}}},
		{ID: "metric.revenue", Name: "revenue", Type: NodeMetric, Row: 0, Col: 3,
			Columns: []Column{{Name: "revenue", Type: "numeric"}}},
	}
	edges := []Edge{
		{From: "source.raw_orders", To: "model.stg_orders"},
		{From: "source.raw_customers", To: "model.stg_customers"},
		{From: "model.stg_orders", To: "model.fct_sales"},
		{From: "model.stg_customers", To: "model.fct_sales"},
		{From: "model.stg_customers", To: "model.dim_customers"},
		{From: "seed.country_codes", To: "model.dim_customers"},
		{From: "model.fct_sales", To: "metric.revenue"},
	}

	g, err := NewGraph(nodes, edges)
	if err != nil {
		// The demo data is static; failing validation is a programming error.
		panic("lineage: invalid demo graph: " + err.Error())
	}
	return g
}
