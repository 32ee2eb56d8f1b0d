package collab

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// APIWorker executes assignments through the Anthropic API.
type APIWorker struct {
	client *Client
}

// NewAPIWorker creates a worker backed by the given client.
func NewAPIWorker(client *Client) *APIWorker {
	return &APIWorker{client: client}
}

// Execute sends the assignment to the model and parses the mandated verdict
// line from its reply.
func (w *APIWorker) Execute(ctx context.Context, a Assignment) (*WorkOutcome, error) {
	prompt := buildWorkPrompt(a)

	resp, err := w.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     w.client.Model(),
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("worker call for task %s: %w", a.Task.ID, err)
	}

	w.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	text := extractText(resp)
	verdict, err := ParseWorkVerdict(text)
	if err != nil {
		return nil, fmt.Errorf("worker output for task %s: %w", a.Task.ID, err)
	}

	return &WorkOutcome{Verdict: verdict, Summary: text}, nil
}

func buildWorkPrompt(a Assignment) string {
	return fmt.Sprintf(`You are implementing one task from a larger development plan.

## Epic: %s
%s

## Story: %s
%s

## Task: %s (complexity %d)

## Acceptance Criteria
%s

Do the work, then report what you did.

End your reply with EXACTLY one line:
VERDICT: complete | partial | blocked

- complete: every acceptance criterion is satisfied
- partial: real progress was made but criteria remain; the task will be dispatched again
- blocked: something outside this task prevents progress; name it in your report`,
		a.Epic.Title, a.Epic.Description,
		a.Story.Title, a.Story.Description,
		a.Task.Title, a.Task.Complexity,
		a.Task.AcceptanceCriteria)
}
