package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/gantrylabs/gantry/pkg/models"
)

// Assignment carries a task to a worker along with its story and epic
// context.
type Assignment struct {
	Task  models.Task
	Story models.Story
	Epic  models.Epic
}

// WorkOutcome is a worker's report on an assignment.
type WorkOutcome struct {
	Verdict models.WorkVerdict
	// Summary is the worker's account of what it did, or why it could not.
	Summary string
}

// ReviewRequest asks a reviewer to judge a completed story or phase.
type ReviewRequest struct {
	Scope models.GateScope
	// Story is set for story-scope reviews.
	Story *models.Story
	// Phase is set for phase-scope reviews.
	Phase *models.Phase
	// Tasks are the member tasks under review.
	Tasks []models.Task
	// Stories are the member stories, set for phase-scope reviews.
	Stories []models.Story
}

// ReviewOutcome is a reviewer's gate verdict plus its reasoning.
type ReviewOutcome struct {
	Verdict models.ReviewVerdict
	Notes   string
}

// Worker executes one assignment at a time.
type Worker interface {
	Execute(ctx context.Context, a Assignment) (*WorkOutcome, error)
}

// Reviewer judges gate requests.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*ReviewOutcome, error)
}

// parseVerdictLine finds the mandated "VERDICT:" line in collaborator output
// and returns the word after it, lowercased. Output without the line is an
// error, never a guessed verdict.
func parseVerdictLine(text string) (string, error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "VERDICT:") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:"))
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", fmt.Errorf("empty VERDICT line")
		}
		return strings.ToLower(fields[0]), nil
	}
	return "", fmt.Errorf("no VERDICT line in output")
}

// ParseWorkVerdict extracts a work verdict from worker output.
func ParseWorkVerdict(text string) (models.WorkVerdict, error) {
	word, err := parseVerdictLine(text)
	if err != nil {
		return "", err
	}
	verdict := models.WorkVerdict(word)
	if !verdict.Valid() {
		return "", fmt.Errorf("unknown work verdict %q", word)
	}
	return verdict, nil
}

// ParseReviewVerdict extracts a review verdict from reviewer output.
func ParseReviewVerdict(text string) (models.ReviewVerdict, error) {
	word, err := parseVerdictLine(text)
	if err != nil {
		return "", err
	}
	verdict := models.ReviewVerdict(word)
	if !verdict.Valid() {
		return "", fmt.Errorf("unknown review verdict %q", word)
	}
	return verdict, nil
}
