// Package server runs liveview sessions.
//
// A Session holds one root view, the tree last sent to its client and the
// registry of components the view has bound. Events are queued and processed
// one at a time by the session's event loop: each is authorized and
// dispatched, the view is re-rendered, the new tree is diffed against the old
// one and the patches are sent over the session's Transport.
//
// # Session Lifecycle
//
//	Created --Mount--> Mounted --> Idle <--> Rendering
//	   any --Terminate--> Terminated
//
// Mount restores persisted state, calls the view's Mount, renders and sends
// the full tree. Start runs the event loop. Terminate is absorbing: queued
// events are rejected, components are unmounted and the transport is closed.
//
// # Event Processing
//
// When a client sends an event:
//  1. The transport decodes it and calls QueueEvent
//  2. The event loop opens a registry pass and dispatches the event
//  3. The root view is rendered; component placeholders are filled in
//  4. Diff generates patches against the previous tree
//  5. The new tree becomes the baseline and the patches are sent
//  6. The view's state is persisted to the session store
//
// Rejected events leave the tree untouched and produce an Error message
// carrying the event's sequence number.
//
// # Example Usage
//
//	srv := server.New(server.DefaultServerConfig(), renderer,
//	    server.WithStore(store),
//	    server.WithMetrics(server.NewMetrics()),
//	)
//	srv.Register("counter", func() component.View { return &Counter{} })
//	srv.Run()
//
// # Thread Safety
//
// Views are only touched from Mount and the event loop and need no locking.
// Session methods are safe for concurrent use.
package server
