package tools

import (
	"encoding/json"

	"github.com/coder/acp-go-sdk"
)

type editArgs struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
	Content   string `json:"content"`
	Edits     []struct {
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	} `json:"edits"`
}

// Preview returns the diff blocks shown for a file-mutating tool before it
// runs, or nil for every other tool.
func Preview(name string, input json.RawMessage) []acp.ToolCallContent {
	if name != Edit && name != Write && name != MultiEdit {
		return nil
	}
	var args editArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil
	}
	switch name {
	case Edit:
		return []acp.ToolCallContent{acp.ToolDiffContent(args.FilePath, args.NewString, args.OldString)}
	case Write:
		return []acp.ToolCallContent{acp.ToolDiffContent(args.FilePath, args.Content)}
	default:
		diffs := make([]acp.ToolCallContent, 0, len(args.Edits))
		for _, e := range args.Edits {
			diffs = append(diffs, acp.ToolDiffContent(args.FilePath, e.NewString, e.OldString))
		}
		return diffs
	}
}

// completionTitle is the title shown once a previewed tool has finished.
func completionTitle(name string) string {
	switch name {
	case Edit:
		return "Edited"
	case MultiEdit:
		return "Multi-edited"
	case Write:
		return "Created"
	}
	return ""
}
