// Package memory implements the bounded per-agent event log.
//
// A Manager persists an agent's events (the tail) in a core.Store and hands out
// snapshots that start with a freshly built Introduction assembled from every
// capability's pinned text. Appending an ok Message prunes the most recent
// error together with the Decision that caused it. Whenever the estimated token
// cost exceeds 75% of the context window, a contiguous prefix of the tail is
// replaced by a single summary event produced by the completion client, as
// long as at least three events remain and the result is strictly cheaper:
//
//	mgr := memory.New(store, client, dispatcher, func(o *memory.Options) {
//		o.AgentID = "alice"
//		o.ContextWindowSize = 8192
//	})
//	snapshot, err := mgr.Append(ctx, core.NewMessageEvent(core.UserMessage("hi", "alice")))
//
// Tails are encoded with a Codec (JSON by default, CBOR optionally).
package memory
