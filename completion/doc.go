// Package completion holds the provider-agnostic helpers around
// core.CompletionClient:
//
//   - FormatEvent / FormatEvents render events into role tagged messages,
//     injecting the MESSAGE FROM and ERROR headers
//   - EstimateTokens / EventCost / CumulativeCosts estimate model-input cost
//   - WithRetry bounds retries of failing completion calls
//   - MockClient is a scripted client for tests and examples
//
// Providers (OpenAI, Anthropic) live in sub-packages and implement
// core.CompletionClient on top of FormatEvents.
package completion
