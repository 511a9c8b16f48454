package middleware

import (
	"io"
	"log/slog"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

type nullView struct {
	visible bool
}

func (v *nullView) Render() *vdom.VNode {
	return vdom.El("div", nil, vdom.Text("view"))
}

func (v *nullView) SetVisible(visible bool) {
	v.visible = visible
}

// newShellNavigator builds a navigator with mw installed. Nil decls means
// the standard two-slot shell.
func newShellNavigator(t *testing.T, decls []slot.Declaration, mw ...server.Middleware) *server.Navigator {
	t.Helper()

	if decls == nil {
		decls = []slot.Declaration{
			{Name: "lineage", Route: "/lineage", Build: func() (slot.View, error) { return &nullView{}, nil }},
			{Name: "query", Route: "/query", Build: func() (slot.View, error) { return &nullView{}, nil }},
		}
	}

	r := router.New()
	for _, d := range decls {
		if err := r.Bind(d.Route, d.Name); err != nil {
			t.Fatalf("Bind(%q, %q): %v", d.Route, d.Name, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := slot.NewRegistry(logger)
	return server.NewNavigator(r, decls, reg, logger, server.NewMetricsCollector(), mw...)
}
