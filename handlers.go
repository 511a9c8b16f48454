package recce

import (
	"context"
	"fmt"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/lineage"
	"github.com/DataRecce/recce-sub014/pkg/protocol"
	"github.com/DataRecce/recce-sub014/pkg/query"
	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// queryTimeout bounds one QueryRunner call. Handlers run on the session
// event loop, so a runner that hangs would stall the whole session.
const queryTimeout = 30 * time.Second

// QueryRunner executes a statement submitted from the query view and
// returns its result grid. Limit is the requested row cap, 0 for the
// runner's default.
type QueryRunner func(ctx context.Context, sql string, limit int) (*query.Result, error)

// registerEventHandlers wires the view interaction events to the declared
// slots. Handlers look the slot up per event: a slot that failed to mount
// yields a retryable error instead of a crash.
func (a *App) registerEventHandlers() {
	a.server.HandleEvent(protocol.EventSelectNode, a.handleSelectNode)
	a.server.HandleEvent(protocol.EventToggleColumn, a.handleToggleColumn)
	a.server.HandleEvent(protocol.EventViewport, a.handleViewport)
	a.server.HandleEvent(protocol.EventRunQuery, a.handleRunQuery)
	a.server.HandleEvent(protocol.EventResize, a.handleResize)
}

// lineageView resolves the mounted lineage view for a session.
func lineageView(s *server.Session) (*lineage.View, *Handle, error) {
	h, ok := s.Slots().Handle(SlotLineage)
	if !ok {
		return nil, nil, fmt.Errorf("recce: slot %q not mounted", SlotLineage)
	}
	v, ok := h.View().(*lineage.View)
	if !ok {
		return nil, nil, fmt.Errorf("recce: slot %q does not host a lineage view", SlotLineage)
	}
	return v, h, nil
}

// queryView resolves the mounted query view for a session.
func queryView(s *server.Session) (*query.View, *Handle, error) {
	h, ok := s.Slots().Handle(SlotQuery)
	if !ok {
		return nil, nil, fmt.Errorf("recce: slot %q not mounted", SlotQuery)
	}
	v, ok := h.View().(*query.View)
	if !ok {
		return nil, nil, fmt.Errorf("recce: slot %q does not host a query view", SlotQuery)
	}
	return v, h, nil
}

// rerender rebuilds a slot's container in place. The container keeps its
// HID, so this is a content refresh, never an unmount.
func rerender(h *Handle) []vdom.Patch {
	return []vdom.Patch{vdom.NewReplaceNodePatch(h.ContainerHID(), h.Render())}
}

func (a *App) handleSelectNode(s *server.Session, ev *protocol.Event) ([]vdom.Patch, error) {
	data, ok := ev.Payload.(*protocol.SelectNodeEventData)
	if !ok {
		return nil, fmt.Errorf("recce: malformed select payload")
	}
	v, h, err := lineageView(s)
	if err != nil {
		return nil, err
	}
	if data.NodeID == "" {
		v.ClearSelection()
		return rerender(h), nil
	}
	if !v.Select(data.NodeID, data.Additive) {
		// Unknown node: likely a stale client after a graph reload.
		return nil, nil
	}
	return rerender(h), nil
}

func (a *App) handleToggleColumn(s *server.Session, ev *protocol.Event) ([]vdom.Patch, error) {
	data, ok := ev.Payload.(*protocol.ToggleColumnEventData)
	if !ok {
		return nil, fmt.Errorf("recce: malformed toggle-column payload")
	}
	v, h, err := lineageView(s)
	if err != nil {
		return nil, err
	}
	v.ToggleColumn(data.NodeID, data.Column)
	return rerender(h), nil
}

// handleViewport records pan/zoom. The client already moved its canvas;
// the server only keeps the viewport so it survives detach and resume.
func (a *App) handleViewport(s *server.Session, ev *protocol.Event) ([]vdom.Patch, error) {
	data, ok := ev.Payload.(*protocol.ViewportEventData)
	if !ok {
		return nil, fmt.Errorf("recce: malformed viewport payload")
	}
	v, _, err := lineageView(s)
	if err != nil {
		return nil, err
	}
	v.SetViewport(lineage.Viewport{X: data.X, Y: data.Y, Zoom: data.Zoom})
	return nil, nil
}

func (a *App) handleRunQuery(s *server.Session, ev *protocol.Event) ([]vdom.Patch, error) {
	data, ok := ev.Payload.(*protocol.RunQueryEventData)
	if !ok {
		return nil, fmt.Errorf("recce: malformed run-query payload")
	}
	v, h, err := queryView(s)
	if err != nil {
		return nil, err
	}
	v.SetSQL(data.SQL)

	run := query.Run{SQL: data.SQL}
	var result *query.Result
	if a.config.QueryRunner == nil {
		run.Error = "no query engine configured"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		started := time.Now()
		result, err = a.config.QueryRunner(ctx, data.SQL, int(data.Limit))
		run.DurationMS = time.Since(started).Milliseconds()
		if err != nil {
			run.Error = err.Error()
			result = nil
		}
	}
	v.RecordRun(run, result)
	return rerender(h), nil
}

// handleResize keeps the session data bag's viewport dimensions current.
func (a *App) handleResize(s *server.Session, ev *protocol.Event) ([]vdom.Patch, error) {
	data, ok := ev.Payload.(*protocol.ResizeEventData)
	if !ok {
		return nil, fmt.Errorf("recce: malformed resize payload")
	}
	s.Set(server.DataViewportWidth, int(data.Width))
	s.Set(server.DataViewportHeight, int(data.Height))
	return nil, nil
}
