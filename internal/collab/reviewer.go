package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/gantrylabs/gantry/pkg/models"
)

// APIReviewer judges gate requests through the Anthropic API.
type APIReviewer struct {
	client *Client
}

// NewAPIReviewer creates a reviewer backed by the given client.
func NewAPIReviewer(client *Client) *APIReviewer {
	return &APIReviewer{client: client}
}

// Review sends the gate request to the model and parses the mandated verdict
// line from its reply. The full reply becomes the review notes.
func (r *APIReviewer) Review(ctx context.Context, req ReviewRequest) (*ReviewOutcome, error) {
	var prompt string
	switch req.Scope {
	case models.GateStory:
		if req.Story == nil {
			return nil, fmt.Errorf("story review request has no story")
		}
		prompt = buildStoryReviewPrompt(req)
	case models.GatePhase:
		if req.Phase == nil {
			return nil, fmt.Errorf("phase review request has no phase")
		}
		prompt = buildPhaseReviewPrompt(req)
	default:
		return nil, fmt.Errorf("unknown review scope %q", req.Scope)
	}

	resp, err := r.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reviewer call: %w", err)
	}

	r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	text := extractText(resp)
	verdict, err := ParseReviewVerdict(text)
	if err != nil {
		return nil, fmt.Errorf("reviewer output: %w", err)
	}

	return &ReviewOutcome{Verdict: verdict, Notes: text}, nil
}

func buildStoryReviewPrompt(req ReviewRequest) string {
	var tasks strings.Builder
	for _, t := range req.Tasks {
		fmt.Fprintf(&tasks, "- [%s] %s", t.Status, t.Title)
		if t.SkipReason != "" {
			fmt.Fprintf(&tasks, " (skipped: %s)", t.SkipReason)
		}
		tasks.WriteString("\n")
		if t.AcceptanceCriteria != "" {
			fmt.Fprintf(&tasks, "  criteria: %s\n", t.AcceptanceCriteria)
		}
	}

	return fmt.Sprintf(`You are reviewing a completed story before it is allowed to move on.

## Story: %s
%s

## Tasks
%s
Judge whether the story delivers what it promises. Skipped tasks need a
defensible reason; incomplete acceptance criteria fail the review.

End your reply with EXACTLY one line:
VERDICT: pass | fail

On fail, list the specific problems that must be fixed.`,
		req.Story.Title, req.Story.Description, tasks.String())
}

func buildPhaseReviewPrompt(req ReviewRequest) string {
	var stories strings.Builder
	for _, s := range req.Stories {
		gate := "gate passed"
		if !s.GatePassed {
			gate = "gate pending"
		}
		fmt.Fprintf(&stories, "- [%s, %s] %s\n", s.Status, gate, s.Title)
	}

	return fmt.Sprintf(`You are reviewing a completed phase before the plan advances past it.

## Phase: %s

## Exit Criteria
%s

## Member Stories
%s
Judge whether the exit criteria are met by the work above.

End your reply with EXACTLY one line:
VERDICT: pass | fail

On fail, list the specific exit criteria that are not yet satisfied.`,
		req.Phase.Name, req.Phase.ExitCriteria, stories.String())
}
