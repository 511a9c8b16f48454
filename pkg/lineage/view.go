package lineage

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// Zoom bounds for the lineage canvas.
const (
	MinZoom = 0.1
	MaxZoom = 4.0
)

// ErrNilGraph is returned when a view is constructed without a graph.
var ErrNilGraph = errors.New("lineage: nil graph")

// Viewport is the pan/zoom state of the lineage canvas.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// View is the lineage slot view: the dependency graph plus everything
// the reviewer accumulates while exploring it (viewport, selection,
// expanded columns). It is not safe for concurrent use; the session
// event loop serializes all access.
type View struct {
	graph    *Graph
	visible  bool
	viewport Viewport
	selected map[string]bool
	expanded map[string]map[string]bool
}

// New builds a lineage view over a validated graph.
func New(g *Graph) (*View, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	return &View{
		graph:    g,
		viewport: Viewport{Zoom: 1},
		selected: make(map[string]bool),
		expanded: make(map[string]map[string]bool),
	}, nil
}

// Graph returns the underlying dependency graph.
func (v *View) Graph() *Graph {
	return v.graph
}

// SetVisible receives the visibility signal delivered on every
// navigation. The view keeps its state either way; remount never
// happens, so nothing is rebuilt here.
func (v *View) SetVisible(visible bool) {
	v.visible = visible
}

// Visible reports the last visibility signal.
func (v *View) Visible() bool {
	return v.visible
}

// Select updates the node selection. With additive false the selection
// is replaced by the node; with additive true the node toggles in and
// out of the set. Unknown nodes are ignored. Reports whether the
// selection changed.
func (v *View) Select(nodeID string, additive bool) bool {
	if !v.graph.Has(nodeID) {
		return false
	}

	if additive {
		if v.selected[nodeID] {
			delete(v.selected, nodeID)
		} else {
			v.selected[nodeID] = true
		}
		return true
	}

	if len(v.selected) == 1 && v.selected[nodeID] {
		return false
	}
	v.selected = map[string]bool{nodeID: true}
	return true
}

// ClearSelection empties the selection set.
func (v *View) ClearSelection() {
	v.selected = make(map[string]bool)
}

// Selected returns the selected node IDs, sorted.
func (v *View) Selected() []string {
	ids := make([]string, 0, len(v.selected))
	for id := range v.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsSelected reports whether a node is in the selection set.
func (v *View) IsSelected(nodeID string) bool {
	return v.selected[nodeID]
}

// Pan moves the viewport by a delta in canvas coordinates.
func (v *View) Pan(dx, dy float64) {
	v.viewport.X += dx
	v.viewport.Y += dy
}

// SetZoom sets the zoom level, clamped to [MinZoom, MaxZoom].
func (v *View) SetZoom(zoom float64) {
	v.viewport.Zoom = clampZoom(zoom)
}

// SetViewport replaces the viewport wholesale, clamping zoom.
func (v *View) SetViewport(vp Viewport) {
	vp.Zoom = clampZoom(vp.Zoom)
	v.viewport = vp
}

// Viewport returns the current viewport.
func (v *View) Viewport() Viewport {
	return v.viewport
}

// ToggleColumn expands or collapses one column of a node. Unknown nodes
// and columns are ignored. Reports whether the view changed.
func (v *View) ToggleColumn(nodeID, column string) bool {
	node, ok := v.graph.Node(nodeID)
	if !ok {
		return false
	}
	found := false
	for _, c := range node.Columns {
		if c.Name == column {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	cols := v.expanded[nodeID]
	if cols == nil {
		cols = make(map[string]bool)
		v.expanded[nodeID] = cols
	}
	if cols[column] {
		delete(cols, column)
		if len(cols) == 0 {
			delete(v.expanded, nodeID)
		}
	} else {
		cols[column] = true
	}
	return true
}

// ExpandedColumns returns the expanded column names of a node, sorted.
func (v *View) ExpandedColumns(nodeID string) []string {
	cols := v.expanded[nodeID]
	if len(cols) == 0 {
		return nil
	}
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render builds the canvas subtree: viewport state on the root, then
// edges, then nodes in artifact order.
func (v *View) Render() *vdom.VNode {
	children := make([]*vdom.VNode, 0, len(v.graph.edges)+len(v.graph.nodes))
	for _, e := range v.graph.Edges() {
		children = append(children, vdom.El("div", vdom.Props{
			"class":     "lineage-edge",
			"data-from": e.From,
			"data-to":   e.To,
		}))
	}
	for _, n := range v.graph.Nodes() {
		children = append(children, v.renderNode(n))
	}

	return vdom.El("div", vdom.Props{
		"class":         "lineage-canvas",
		"data-zoom":     v.viewport.Zoom,
		"data-offset-x": v.viewport.X,
		"data-offset-y": v.viewport.Y,
	}, children...).WithHID("lineage-canvas")
}

func (v *View) renderNode(n Node) *vdom.VNode {
	class := "lineage-node lineage-node-" + string(n.Type)
	if v.selected[n.ID] {
		class += " selected"
	}

	kids := []*vdom.VNode{
		vdom.El("span", vdom.Props{"class": "node-name"}, vdom.Text(n.Name)),
	}
	if expanded := v.ExpandedColumns(n.ID); len(expanded) > 0 {
		items := make([]*vdom.VNode, 0, len(expanded))
		for _, name := range expanded {
			items = append(items, vdom.El("li", vdom.Props{
				"class": "node-column",
			}, vdom.Textf("%s %s", name, columnType(n, name))))
		}
		kids = append(kids, vdom.El("ul", vdom.Props{"class": "node-columns"}, items...))
	}

	return vdom.El("div", vdom.Props{
		"class":        class,
		"data-node-id": n.ID,
		"data-row":     n.Row,
		"data-col":     n.Col,
	}, kids...).WithHID("ln-" + n.ID).WithKey(n.ID)
}

func columnType(n Node, name string) string {
	for _, c := range n.Columns {
		if c.Name == name {
			return c.Type
		}
	}
	return ""
}

// viewState is the snapshot wire form of the accumulated view state.
type viewState struct {
	Viewport Viewport            `json:"viewport"`
	Selected []string            `json:"selected,omitempty"`
	Expanded map[string][]string `json:"expanded,omitempty"`
}

// StateJSON serializes the accumulated view state for a session snapshot.
// The graph itself is not serialized; it is rebuilt from artifacts on
// resume and the state is reapplied over it.
func (v *View) StateJSON() ([]byte, error) {
	st := viewState{
		Viewport: v.viewport,
		Selected: v.Selected(),
	}
	if len(v.expanded) > 0 {
		st.Expanded = make(map[string][]string, len(v.expanded))
		for id := range v.expanded {
			st.Expanded[id] = v.ExpandedColumns(id)
		}
	}
	return json.Marshal(st)
}

// RestoreJSON reapplies snapshot state over the current graph. Entries
// for nodes or columns that no longer exist are dropped: a snapshot
// taken against older artifacts restores what it can.
func (v *View) RestoreJSON(data []byte) error {
	var st viewState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}

	vp := st.Viewport
	if vp.Zoom == 0 {
		vp.Zoom = 1
	}
	v.SetViewport(vp)

	v.selected = make(map[string]bool, len(st.Selected))
	for _, id := range st.Selected {
		if v.graph.Has(id) {
			v.selected[id] = true
		}
	}

	v.expanded = make(map[string]map[string]bool, len(st.Expanded))
	for id, names := range st.Expanded {
		for _, name := range names {
			v.ToggleColumn(id, name)
		}
	}
	return nil
}

func clampZoom(zoom float64) float64 {
	switch {
	case zoom < MinZoom:
		return MinZoom
	case zoom > MaxZoom:
		return MaxZoom
	default:
		return zoom
	}
}
