package tools

import (
	"encoding/json"
	"strings"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/errors"
)

var priorityKeywords = []struct {
	priority acp.PlanEntryPriority
	words    []string
}{
	{acp.PlanEntryPriorityHigh, []string{"error", "fix", "bug", "critical"}},
	{acp.PlanEntryPriorityMedium, []string{"implement", "add", "create", "build"}},
	{acp.PlanEntryPriorityLow, []string{"document", "test", "research", "review"}},
}

// Priority classifies a todo item by keyword, first match wins.
func Priority(content string) acp.PlanEntryPriority {
	lower := strings.ToLower(content)
	for _, group := range priorityKeywords {
		for _, w := range group.words {
			if strings.Contains(lower, w) {
				return group.priority
			}
		}
	}
	return acp.PlanEntryPriorityMedium
}

// Plan converts TodoWrite arguments into plan entries.
func Plan(input json.RawMessage) ([]acp.PlanEntry, error) {
	var args struct {
		Todos []struct {
			Content    string `json:"content"`
			Status     string `json:"status"`
			ActiveForm string `json:"activeForm"`
		} `json:"todos"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errors.Wrapf(err, "invalid %s input", TodoWrite)
	}
	entries := make([]acp.PlanEntry, 0, len(args.Todos))
	for _, todo := range args.Todos {
		status := acp.PlanEntryStatus(todo.Status)
		if status == "" {
			status = acp.PlanEntryStatusPending
		}
		entries = append(entries, acp.PlanEntry{
			Content:  todo.Content,
			Priority: Priority(todo.Content),
			Status:   status,
		})
	}
	return entries, nil
}
