// Package core provides the foundational domain types and interfaces shared by
// every agentloop package. It defines:
//
//   - Events (Decisions and Messages, the episodic memory units of an agent)
//   - Messages (the wire shape carried by a MessageBus)
//   - Store, CompletionClient and MessageBus (the external collaborators)
//   - The fault taxonomy (completion and store faults)
//
// Implementations (memory management, parsing, transports, persistence) live
// in sibling packages and only depend on the small interfaces declared here.
package core
