// Package rtest provides a test driver for slot declarations and the
// navigation pipeline.
//
// A Shell runs the same canonicalize/resolve/mount/visibility pipeline a
// live session runs, without a server or a connection, so view packages can
// test their declarations directly:
//
//	func TestLineageStaysMounted(t *testing.T) {
//	    sh := rtest.NewShell(t, []slot.Declaration{
//	        lineage.Declare(cfg),
//	        query.Declare(cfg),
//	    })
//
//	    sh.MustNavigate("/lineage")
//	    sh.AssertVisible("lineage")
//
//	    sh.MustNavigate("/query")
//	    sh.AssertHidden("lineage")
//	    sh.AssertMounted("lineage")
//	}
//
// Shells can also simulate the detach/rebuild lifecycle to verify that view
// state marked for snapshotting survives a reconnect:
//
//	sh.MustNavigate("/lineage")
//	view := sh.View("lineage").(*lineage.View)
//	view.SelectNode("model.orders")
//
//	sh.SimulateReload()
//	restored := sh.View("lineage").(*lineage.View)
//	// restored carries the selection, through a fresh view instance
package rtest
