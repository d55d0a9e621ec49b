package proc

import (
	"testing"

	"github.com/tmsolberg/conductor/internal/models"
)

func TestClassifyLinePlainText(t *testing.T) {
	events, structured := ClassifyLine("compiling package foo...")
	if structured {
		t.Fatalf("plain text should not be structured")
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestClassifyLineInvalidJSON(t *testing.T) {
	_, structured := ClassifyLine("{not json}")
	if structured {
		t.Fatalf("invalid JSON should not be structured")
	}
}

func TestClassifyLineUnknownType(t *testing.T) {
	_, structured := ClassifyLine(`{"type":"telemetry","data":1}`)
	if structured {
		t.Fatalf("unknown record types should pass through verbatim")
	}
}

func TestClassifyLineSystemInit(t *testing.T) {
	events, structured := ClassifyLine(`{"type":"system","subtype":"init","model":"opus-4"}`)
	if !structured {
		t.Fatalf("expected structured line")
	}
	if len(events) != 1 || events[0].Type != models.EventModelInit || events[0].Model != "opus-4" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestClassifyLineAssistantTextAndTool(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"let me check"},{"type":"tool_use","name":"Bash"}]}}`
	events, structured := ClassifyLine(line)
	if !structured {
		t.Fatalf("expected structured line")
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	if events[0].Type != models.EventAssistantText || events[0].Text != "let me check" {
		t.Fatalf("unexpected first event %v", events[0])
	}
	if events[1].Type != models.EventToolStarted || events[1].Tool != "Bash" {
		t.Fatalf("unexpected second event %v", events[1])
	}
}

func TestClassifyLineToolResult(t *testing.T) {
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu_1"}]}}`
	events, structured := ClassifyLine(line)
	if !structured {
		t.Fatalf("expected structured line")
	}
	if len(events) != 1 || events[0].Type != models.EventToolCompleted {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestClassifyLineResult(t *testing.T) {
	events, structured := ClassifyLine(`{"type":"result","result":"all done","is_error":true}`)
	if !structured {
		t.Fatalf("expected structured line")
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", events)
	}
	if events[0].Type != models.EventResultSummary || events[0].Text != "all done" || !events[0].IsError {
		t.Fatalf("unexpected event %v", events[0])
	}
}
