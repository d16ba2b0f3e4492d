// Package dispatch authorizes client events and invokes their handlers.
//
// An event names a target (the root view, or a component ID) and a handler.
// The Dispatcher resolves the target through the session's component
// registry, then looks the handler up in the target's allow-list. Nothing
// outside that list is reachable, whatever methods the target type has.
//
// Every failure is a *Rejected carrying a Reason. Rejections match the
// package sentinels with errors.Is:
//
//	if errors.Is(err, dispatch.ErrHandlerNotAllowed) {
//	    // log and drop
//	}
//
// Each Dispatcher also owns the token buckets of its session: one for the
// whole session and one per rate-limited handler.
package dispatch
