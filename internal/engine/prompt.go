package engine

import (
	"strings"

	"github.com/tmsolberg/conductor/internal/models"
	"github.com/tmsolberg/conductor/internal/promise"
)

// continuationTailLines bounds how much prior output a continuation
// prompt carries back to the agent.
const continuationTailLines = 80

// writeContextPrefix prepends the auxiliary context text. Every prompt
// sent to the agent carries it, not just the first iteration.
func writeContextPrefix(builder *strings.Builder, contextText string) {
	if strings.TrimSpace(contextText) != "" {
		builder.WriteString(strings.TrimRight(contextText, "\n"))
		builder.WriteString("\n\n")
	}
}

// buildInitialPrompt assembles the first-iteration prompt: auxiliary
// context first, then any previous attempt's error so repeated attempts
// are self-correcting, then the step prompt.
func buildInitialPrompt(contextText, stepPrompt, previousError string) string {
	builder := strings.Builder{}
	writeContextPrefix(&builder, contextText)
	if previousError != "" {
		builder.WriteString("## Previous Attempt Failed\n\n")
		builder.WriteString(previousError)
		builder.WriteString("\n\nCorrect the problem above while completing the task.\n\n")
	}
	builder.WriteString(stepPrompt)
	return builder.String()
}

// buildContinuationPrompt restates the goal and feeds back the prior
// iteration's output, asking the agent to finish and emit the
// completion marker.
func buildContinuationPrompt(contextText string, step models.StepSpec, previousOutput string) string {
	builder := strings.Builder{}
	writeContextPrefix(&builder, contextText)
	builder.WriteString("Continue working toward this goal:\n\n")
	builder.WriteString(step.Prompt)
	builder.WriteString("\n\n## Your Previous Output\n\n")
	builder.WriteString(outputTail(previousOutput, continuationTailLines))
	builder.WriteString("\n\nFinish the remaining work. When everything is done, output ")
	builder.WriteString(promise.Marker(step.CompletionPromise))
	builder.WriteString(" on its own line.")
	return builder.String()
}

// buildVerifyPrompt appends the verify marker instruction to the
// step's verification prompt.
func buildVerifyPrompt(contextText string, step models.StepSpec) string {
	builder := strings.Builder{}
	writeContextPrefix(&builder, contextText)
	builder.WriteString(step.VerifyPrompt)
	builder.WriteString("\n\nIf and only if verification passes, output ")
	builder.WriteString(promise.Marker(step.VerifyPromise))
	builder.WriteString(" on its own line.")
	return builder.String()
}

// outputTail returns the last n lines of s.
func outputTail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
