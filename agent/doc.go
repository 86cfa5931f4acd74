// Package agent implements the per-agent control loop.
//
// An Agent owns one goroutine (Run) that reacts to two inputs:
//
//  1. Inbound messages, queued by Deliver and appended to memory in arrival order
//  2. A fixed-interval timer that starts a decision cycle
//
// A decision cycle retrieves the memory snapshot, asks the completion client
// for the next action, records the raw reply as a Decision, parses it against
// the capability registry and executes it. Parse errors and handler faults
// are appended as error Messages so the agent can correct itself on the next
// tick. Cycles never overlap and never stack: a firing that arrives while a
// cycle is in flight is dropped. The cycle is skipped while the most recent
// event is a Decision, which is also why a fresh agent waits for its first
// message.
//
// Completion faults abort the cycle without touching memory. Store faults are
// fatal and returned from Run.
package agent
