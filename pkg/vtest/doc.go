// Package vtest provides testing helpers for liveview views.
//
// A TestSession mounts a view on an in-memory Transport and keeps a Client
// mirror in step with it, so tests can drive events and assert on the HTML a
// browser would show without a socket.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    ts := vtest.NewSession(t, func() component.View { return &Counter{} }, renderer)
//
//	    out := ts.MustEvent("", "increment", map[string]string{"by": "2"})
//	    if len(out.Patches) != 1 {
//	        t.Errorf("patches = %d, want 1", len(out.Patches))
//	    }
//	    if !strings.Contains(ts.HTML(), "2") {
//	        t.Errorf("HTML() = %q", ts.HTML())
//	    }
//	}
//
// # Client Mirror
//
// The Client applies every Mount and Patches message with vdom.Apply and
// compares the result with the fingerprint the server sent. A gap in patch
// sequence numbers or a fingerprint mismatch fails the test.
//
// # Session Lifecycle
//
// State persistence can be exercised without a server:
//
//	ts.MustEvent("", "increment", nil)
//	ts.AssertPersisted(t)
//
//	// Reload the page: a new view is mounted under the same ID.
//	if err := ts.SimulateRefresh(); err != nil {
//	    t.Fatal(err)
//	}
//
// # Transport
//
// Transport can also be used on its own with server.NewSession. It round
// trips every message through the session's framer and offers Wait helpers
// for asynchronous sends.
package vtest
