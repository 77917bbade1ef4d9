package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	actionRe = regexp.MustCompile(`(?s)ACTION:\s*(\w+)(?:\((.*?)\))?`)
	paramRe  = regexp.MustCompile(`(\w+)\s*=\s*["']?([^"',)]+)["']?`)
	fenceRe  = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")
	braceRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseAction extracts "ACTION: tool_name(key=value, ...)" from an LLM
// response (§4.5). Values are parsed as int, then float, then string;
// an absent parameter list yields no parameters; no ACTION line at all
// yields tool "none".
func ParseAction(response string) (string, map[string]any) {
	m := actionRe.FindStringSubmatch(response)
	if m == nil {
		return "none", map[string]any{}
	}
	tool := m[1]
	paramsStr := strings.TrimSpace(m[2])

	params := map[string]any{}
	if paramsStr != "" {
		for _, match := range paramRe.FindAllStringSubmatch(paramsStr, -1) {
			key := match[1]
			val := strings.TrimSpace(match[2])
			if n, err := strconv.Atoi(val); err == nil {
				params[key] = n
				continue
			}
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				params[key] = f
				continue
			}
			params[key] = val
		}
		if len(params) == 0 {
			params["value"] = paramsStr
		}
	}
	return tool, params
}

// ParseJSON extracts a JSON object from an LLM response, tolerating
// fenced code blocks and leading/trailing prose (§4.5). Returns an
// empty map if no valid JSON object is recoverable.
func ParseJSON(response string) map[string]any {
	text := strings.TrimSpace(response)

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out
	}

	if m := braceRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out
		}
	}
	return map[string]any{}
}
