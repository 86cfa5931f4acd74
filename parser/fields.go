package parser

import (
	"errors"
	"fmt"
	"strings"
)

type field struct {
	key   string
	value string
}

const blockIndicator = "|"

// parseFields splits text into an ordered key/value stream. The first field is
// always the action name keyed as "action" or "name".
func parseFields(text string) ([]field, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines = stripFence(lines)

	i := skipBlank(lines, 0)
	if i == len(lines) {
		return nil, errors.New("empty response")
	}

	base := indentOf(lines[i])
	var (
		fields []field
		seen   = map[string]bool{}
	)

	for i < len(lines) {
		if isBlank(lines[i]) {
			i++
			continue
		}

		start := i
		f, next, err := parseField(lines, i, base)
		if err != nil {
			return nil, err
		}
		i = next

		if len(fields) == 0 {
			if f.key != "action" && f.key != "name" {
				return nil, fmt.Errorf("line %d: the first line must be `action: <action name>`", start+1)
			}
			if f.value == "" {
				return nil, errors.New("missing action name")
			}
		} else if seen[f.key] {
			return nil, fmt.Errorf("duplicate key `%s`", f.key)
		}

		seen[f.key] = true
		fields = append(fields, f)
	}

	return fields, nil
}

// parseField parses the key/value pair starting at lines[i] and returns the
// index of the first line after it.
func parseField(lines []string, i, indent int) (field, int, error) {
	line := lines[i]
	if indentOf(line) != indent {
		return field{}, 0, fmt.Errorf("line %d: unexpected indentation", i+1)
	}

	key, rest, ok := strings.Cut(line[indent:], ":")
	if !ok || !validKey(key) {
		return field{}, 0, fmt.Errorf("line %d: expected `key: value`", i+1)
	}

	value := strings.TrimSpace(rest)
	if value != blockIndicator {
		return field{key: key, value: value}, i + 1, nil
	}

	block, next := parseBlock(lines, i+1, indent+2)
	return field{key: key, value: block}, next, nil
}

// parseBlock consumes lines indented at least indent spaces (blank lines
// included) and returns them with the shared indent removed. Trailing blank
// lines are not part of the block.
func parseBlock(lines []string, start, indent int) (string, int) {
	var out []string
	j := start
	for j < len(lines) {
		l := lines[j]
		if isBlank(l) {
			out = append(out, "")
			j++
			continue
		}
		if indentOf(l) < indent {
			break
		}
		out = append(out, l[indent:])
		j++
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n"), j
}

// stripFence removes a surrounding ``` code fence, which models often add.
func stripFence(lines []string) []string {
	first := skipBlank(lines, 0)
	last := len(lines) - 1
	for last >= 0 && isBlank(lines[last]) {
		last--
	}
	if first >= last {
		return lines
	}
	if strings.HasPrefix(strings.TrimSpace(lines[first]), "```") && strings.TrimSpace(lines[last]) == "```" {
		return lines[first+1 : last]
	}
	return lines
}

func skipBlank(lines []string, i int) int {
	for i < len(lines) && isBlank(lines[i]) {
		i++
	}
	return i
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func indentOf(s string) int { return len(s) - len(strings.TrimLeft(s, " ")) }

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
