// Package tools reports the upstream assistant's tool activity to the
// client: it classifies tool names, renders titles and diff previews,
// converts the todo tool into a plan, and tracks each invocation from
// tool_use to tool_result. It never executes a tool.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/coder/acp-go-sdk"
)

// Tool names with special handling.
const (
	Edit      = "Edit"
	MultiEdit = "MultiEdit"
	Write     = "Write"
	TodoWrite = "TodoWrite"
)

var kinds = map[string]acp.ToolKind{
	"Bash":         acp.ToolKindExecute,
	"BashOutput":   acp.ToolKindExecute,
	"KillShell":    acp.ToolKindExecute,
	"Glob":         acp.ToolKindSearch,
	"Grep":         acp.ToolKindSearch,
	"LS":           acp.ToolKindSearch,
	"Read":         acp.ToolKindRead,
	"NotebookRead": acp.ToolKindRead,
	"Edit":         acp.ToolKindEdit,
	"MultiEdit":    acp.ToolKindEdit,
	"Write":        acp.ToolKindEdit,
	"NotebookEdit": acp.ToolKindEdit,
	"WebFetch":     acp.ToolKindFetch,
	"WebSearch":    acp.ToolKindFetch,
	"web_search":   acp.ToolKindFetch,
	"Task":         acp.ToolKindThink,
	"ExitPlanMode": acp.ToolKindThink,
}

// Kind classifies a tool name. MCP tools (mcp__server__tool) are classified
// by their last segment; anything unknown is "other".
func Kind(name string) acp.ToolKind {
	if k, ok := kinds[name]; ok {
		return k
	}
	if strings.HasPrefix(name, "mcp__") {
		if i := strings.LastIndex(name, "__"); i >= 0 {
			if k, ok := kinds[name[i+2:]]; ok {
				return k
			}
		}
	}
	return acp.ToolKindOther
}

// Title renders name(k: v, ...) with keys sorted. String values are shown
// unquoted, everything else as JSON. Input that is not an object, or an
// empty object, yields just the name.
func Title(name string, input json.RawMessage) string {
	var args map[string]json.RawMessage
	if err := json.Unmarshal(input, &args); err != nil || len(args) == 0 {
		return name
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, renderValue(args[k])))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func renderValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// compact whatever the upstream sent
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

// Locations lists the file paths a tool touches, taken from its file_path,
// path or notebook_path argument.
func Locations(input json.RawMessage) []acp.ToolCallLocation {
	var args struct {
		FilePath     string `json:"file_path"`
		Path         string `json:"path"`
		NotebookPath string `json:"notebook_path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil
	}
	for _, p := range []string{args.FilePath, args.NotebookPath, args.Path} {
		if p != "" {
			return []acp.ToolCallLocation{{Path: p}}
		}
	}
	return nil
}
