package completion

import (
	"unicode/utf8"

	"github.com/hupe1980/agentloop/core"
)

// messageOverhead approximates the per-message framing tokens (role markers,
// separators) most chat APIs add.
const messageOverhead = 4

// EstimateTokens approximates the token count of text at four characters per
// token, rounding up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// EventCost estimates the model-input cost of e in its formatted form.
func EventCost(e core.Event) int {
	return messageOverhead + EstimateTokens(FormatEvent(e).Content)
}

// Costs returns the cost of every event using cost (EventCost when nil).
func Costs(events []core.Event, cost func(core.Event) int) []int {
	if cost == nil {
		cost = EventCost
	}
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = cost(e)
	}
	return out
}

// CumulativeCosts returns running sums: out[i] = costs[0] + ... + costs[i].
// Costs are non-negative, so the result is monotonically non-decreasing.
func CumulativeCosts(costs []int) []int {
	out := make([]int, len(costs))
	sum := 0
	for i, c := range costs {
		sum += c
		out[i] = sum
	}
	return out
}

// Total returns the summed cost of events.
func Total(events []core.Event, cost func(core.Event) int) int {
	total := 0
	for _, c := range Costs(events, cost) {
		total += c
	}
	return total
}
