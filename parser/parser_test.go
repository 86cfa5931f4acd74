package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/capability"
)

func nop(map[string]string, *capability.ActionContext) error { return nil }

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	r, err := capability.NewRegistry(
		&capability.Module{
			Name: "goals",
			Actions: map[string]*capability.ActionDefinition{
				"addGoal": {
					Description: "Add a new goal",
					Parameters: map[string]capability.ParameterDefinition{
						"goal": {Description: "A summary of what you want to achieve", Required: true},
					},
					Handler: nop,
				},
			},
		},
		&capability.Module{
			Name: "notes",
			Actions: map[string]*capability.ActionDefinition{
				"writeNote": {
					Description: "Write a note",
					Parameters: map[string]capability.ParameterDefinition{
						"title":   {Description: "The title", Required: true},
						"content": {Description: "The body", Required: true},
						"tags":    {Description: "Comma separated tags"},
					},
					Handler: nop,
				},
			},
		},
	)
	require.NoError(t, err)
	return r
}

func parseErr(t *testing.T, err error) *ParseError {
	t.Helper()
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	return pe
}

func TestParse_AddGoalWithBlockThoughts(t *testing.T) {
	r := testRegistry(t)

	action, err := Parse(r, "action: addGoal\nthoughts: |\n  test\ngoal: Ship v1")
	require.NoError(t, err)

	assert.Equal(t, "addGoal", action.Name())
	assert.Equal(t, "test", action.Thoughts)
	assert.Equal(t, map[string]string{"goal": "Ship v1"}, action.Parameters)
}

func TestParse_NameKeyAndLeadingBlankLines(t *testing.T) {
	r := testRegistry(t)

	action, err := Parse(r, "\n\n  \nname: addGoal\ngoal: x")
	require.NoError(t, err)
	assert.Equal(t, "addGoal", action.Name())
	assert.Empty(t, action.Thoughts)
}

func TestParse_BlockPreservesInternalBlankLines(t *testing.T) {
	r := testRegistry(t)
	body := "first paragraph\n\nsecond paragraph\n    indented code\n\n\nthird"

	text := "action: writeNote\ntitle: Plan\ncontent: |\n"
	for _, l := range splitLines(body) {
		if l == "" {
			text += "\n"
			continue
		}
		text += "  " + l + "\n"
	}
	text += "\n\ntags: a,b\n"

	action, err := Parse(r, text)
	require.NoError(t, err)
	assert.Equal(t, body, action.Parameters["content"])
	assert.Equal(t, "a,b", action.Parameters["tags"])
	assert.Equal(t, "Plan", action.Parameters["title"])
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func TestParse_BlockAtEndOfInput(t *testing.T) {
	r := testRegistry(t)

	action, err := Parse(r, "action: writeNote\ntitle: t\ncontent: |\n  line one\n\n  line two\n\n")
	require.NoError(t, err)
	assert.Equal(t, "line one\n\nline two", action.Parameters["content"])
}

func TestParse_CodeFenceIsStripped(t *testing.T) {
	r := testRegistry(t)

	action, err := Parse(r, "```\naction: addGoal\ngoal: Ship v1\n```\n")
	require.NoError(t, err)
	assert.Equal(t, "Ship v1", action.Parameters["goal"])
}

func TestParse_MissingParameter(t *testing.T) {
	r := testRegistry(t)

	_, err := Parse(r, "action: addGoal\nthoughts: nothing to add")
	pe := parseErr(t, err)
	assert.Equal(t, MissingParameter, pe.Kind)
	assert.Contains(t, pe.Message, "goal")
	assert.Contains(t, pe.Message, "action: addGoal")
}

func TestParse_UnknownAction(t *testing.T) {
	r := testRegistry(t)

	_, err := Parse(r, "action: doStuff\nfoo: bar")
	pe := parseErr(t, err)
	assert.Equal(t, UnknownAction, pe.Kind)
	assert.Contains(t, pe.Message, "doStuff")
	assert.Contains(t, pe.Message, "addGoal, writeNote")
}

func TestParse_UnexpectedParameter(t *testing.T) {
	r := testRegistry(t)

	_, err := Parse(r, "action: addGoal\ngoal: g\npriority: high")
	pe := parseErr(t, err)
	assert.Equal(t, UnexpectedParameter, pe.Kind)
	assert.Contains(t, pe.Message, "priority")
	assert.Contains(t, pe.Message, "goal: <A summary of what you want to achieve>")
}

func TestParse_MissingCheckedBeforeUnexpected(t *testing.T) {
	r := testRegistry(t)

	_, err := Parse(r, "action: addGoal\npriority: high")
	assert.Equal(t, MissingParameter, parseErr(t, err).Kind)
}

func TestParse_Malformed(t *testing.T) {
	r := testRegistry(t)

	cases := map[string]string{
		"empty":             "",
		"whitespace":        "   \n\t\n",
		"prose":             "I think I should add a goal.",
		"wrong first key":   "goal: Ship v1\naction: addGoal",
		"missing name":      "action:\ngoal: x",
		"bad indentation":   "action: addGoal\n goal: x",
		"duplicate key":     "action: addGoal\ngoal: a\ngoal: b",
		"line without key":  "action: addGoal\njust some words",
		"block underindent": "action: writeNote\ntitle: t\ncontent: |\n  ok\n bad",
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(r, text)
			pe := parseErr(t, err)
			assert.Equal(t, MalformedInput, pe.Kind)
			assert.Contains(t, pe.Message, "action: <action name>")
			assert.Contains(t, pe.Message, "addGoal, writeNote")
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	r := testRegistry(t)
	inputs := []string{
		"action: writeNote\nfoo: 1\nbar: 2\ntitle: t\ncontent: c",
		"action: writeNote",
		"action: addGoal\ngoal: x",
	}

	for _, in := range inputs {
		a1, err1 := Parse(r, in)
		for i := 0; i < 20; i++ {
			a2, err2 := Parse(r, in)
			assert.Equal(t, a1, a2)
			assert.Equal(t, err1, err2)
		}
	}
}
