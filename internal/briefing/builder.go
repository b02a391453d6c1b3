// Package briefing assembles the reviewer briefing attached to escalated
// decisions. Briefings are assistive context only; nothing here feeds back
// into authorization or scheduling logic.
package briefing

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/policy"
	"github.com/civicworks/capital-triage/internal/retrieval"
)

// MaxKeyRisks caps the risk bullets a briefing carries.
const MaxKeyRisks = 4

// Builder composes briefings from retrieval context and candidate attributes,
// with optional model-written risk summaries.
type Builder struct {
	retriever retrieval.Retriever
	client    *openai.Client
	model     string
	logger    *zap.Logger
}

// NewBuilder creates a briefing builder. client may be nil, in which case key
// risks come from the deterministic derivation only.
func NewBuilder(retriever retrieval.Retriever, client *openai.Client, model string, logger *zap.Logger) *Builder {
	return &Builder{retriever: retriever, client: client, model: model, logger: logger}
}

// Build assembles the briefing for an escalated decision. Any collaborator
// failure degrades the briefing rather than blocking decision persistence.
func (b *Builder) Build(ctx context.Context, candidate *models.ProjectCandidate, decision *models.PolicyDecision, escalations []string) *models.Briefing {
	briefing := &models.Briefing{
		EscalationReason: escalations,
		KeyRisks:         deriveKeyRisks(candidate, decision),
	}

	query := fmt.Sprintf("%s %s cost %.0f", candidate.Title, candidate.Category, candidate.EstimatedCost)
	retrieved, err := b.retriever.Retrieve(ctx, query)
	if err != nil {
		b.logger.Warn("Briefing retrieval failed, continuing without context",
			zap.String("project_id", candidate.ProjectID), zap.Error(err))
	} else {
		briefing.RelevantPolicies = retrieved.Policies
		briefing.HistoricalPrecedents = retrieved.Precedents
	}

	if b.client != nil {
		if risks, err := b.enhanceKeyRisks(ctx, candidate, decision); err != nil {
			b.logger.Warn("Briefing enhancement failed, keeping derived risks",
				zap.String("project_id", candidate.ProjectID), zap.Error(err))
		} else if len(risks) > 0 {
			if len(risks) > MaxKeyRisks {
				risks = risks[:MaxKeyRisks]
			}
			briefing.KeyRisks = risks
		}
	}

	return briefing
}

// deriveKeyRisks produces risk bullets from candidate attributes alone. This
// is the deterministic floor for every briefing.
func deriveKeyRisks(candidate *models.ProjectCandidate, decision *models.PolicyDecision) []string {
	var risks []string

	if candidate.EstimatedCost > policy.CostThreshold {
		risks = append(risks, fmt.Sprintf("Major capital commitment of $%.1fM", candidate.EstimatedCost/1_000_000))
	}
	if candidate.RiskScore >= policy.HighRiskThreshold {
		risks = append(risks, fmt.Sprintf("High risk score %.1f/8 indicates urgent infrastructure failure", candidate.RiskScore))
	}
	if candidate.PopulationAffected >= policy.HighPopulationThreshold {
		risks = append(risks, fmt.Sprintf("Service disruption affects %d residents", candidate.PopulationAffected))
	}
	if candidate.LegalMandate && decision.Decision == models.DecisionReject {
		risks = append(risks, "Rejection carries legal non-compliance exposure")
	}
	if decision.Confidence < policy.ConfidenceThreshold {
		risks = append(risks, fmt.Sprintf("Reviewer proposed with low confidence (%d%%)", decision.Confidence))
	}

	if len(risks) == 0 {
		risks = append(risks, "Standard project risks apply")
	}
	if len(risks) > MaxKeyRisks {
		risks = risks[:MaxKeyRisks]
	}
	return risks
}

func (b *Builder) enhanceKeyRisks(ctx context.Context, candidate *models.ProjectCandidate, decision *models.PolicyDecision) ([]string, error) {
	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You summarize risks of municipal capital projects for a human reviewer. " +
					"Your output is advisory context only and must not recommend a decision. " +
					"Respond with one risk per line, at most 4 lines, plain text.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(`Summarize the key risks the reviewer should weigh:

Project: %s
Category: %s
Scope: %s
Risk score: %.1f/8
Estimated cost: $%.0f over %d weeks
Population affected: %d
Legal mandate: %t
Proposed decision: %s (confidence %d%%)`,
					candidate.Title, candidate.Category, candidate.Scope,
					candidate.RiskScore, candidate.EstimatedCost, candidate.EstimatedWeeks,
					candidate.PopulationAffected, candidate.LegalMandate,
					decision.Decision, decision.Confidence),
			},
		},
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}
	return splitLines(resp.Choices[0].Message.Content), nil
}

func splitLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimLeft(raw, " \t-*"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
