// Package engine runs a fixed set of agents as one process.
//
// The Engine builds a single capability registry (the built-in core module
// followed by the configured modules) and shares it, together with the
// store, the message bus and the completion client, across all agents. Each
// agent gets its own memory manager and dispatcher so event logs and module
// state never leak between agents.
//
// # Lifecycle
//
//	eng, err := engine.New(func(o *engine.Options) {
//	    o.AgentIDs = []string{"alice", "bob"}
//	    o.Client = openai.NewClient()
//	})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	_ = eng.Send(ctx, core.UserMessage("plan the release", "alice"))
//	err = eng.Run(ctx) // blocks until ctx is cancelled
//
// # Faults
//
// Completion faults and recoverable action errors are handled inside each
// agent loop. A store fault stops the affected agent only; it is logged as
// engine.agent.store_fault, reported to CallbackStoreFault callbacks and
// returned from Run once every agent has stopped.
package engine
