package proc

import (
	"encoding/json"
	"strings"

	"github.com/tmsolberg/conductor/internal/models"
)

// StreamEvent is a typed event classified from one line of agent
// process output.
type StreamEvent struct {
	// Type is one of the models.Event* stream types.
	Type string

	// Text holds assistant text or a result summary.
	Text string

	// Tool is the tool name for tool events.
	Tool string

	// Model is the model identifier on init events.
	Model string

	// IsError marks an error result summary.
	IsError bool
}

// streamLine is the envelope for a structured agent output line
// (stream-json format). The Type field determines which payload
// fields are populated.
type streamLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Model   string `json:"model"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Name      string `json:"name"`
	ToolUseID string `json:"tool_use_id"`
}

// ClassifyLine attempts a structured decode of one output line and
// maps it to typed events. The second return value is false when the
// line is not a structured record; callers keep such lines verbatim.
// A decode attempt is made only on lines that look like a JSON object,
// so classification stays total over arbitrary agent output.
func ClassifyLine(line string) ([]StreamEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 2 || !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, false
	}

	var record streamLine
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, false
	}

	switch strings.ToLower(record.Type) {
	case "system":
		if strings.EqualFold(record.Subtype, "init") {
			return []StreamEvent{{Type: models.EventModelInit, Model: record.Model}}, true
		}
		return nil, true
	case "assistant":
		events := make([]StreamEvent, 0, len(record.Message.Content))
		for _, block := range record.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					events = append(events, StreamEvent{Type: models.EventAssistantText, Text: block.Text})
				}
			case "tool_use":
				events = append(events, StreamEvent{Type: models.EventToolStarted, Tool: block.Name})
			}
		}
		return events, true
	case "user":
		events := make([]StreamEvent, 0, 1)
		for _, block := range record.Message.Content {
			if block.Type == "tool_result" {
				events = append(events, StreamEvent{Type: models.EventToolCompleted, Tool: block.ToolUseID})
			}
		}
		return events, true
	case "result":
		return []StreamEvent{{Type: models.EventResultSummary, Text: record.Result, IsError: record.IsError}}, true
	default:
		return nil, false
	}
}
