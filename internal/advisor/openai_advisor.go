package advisor

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/policy"
)

// OpenAIAdvisor asks a chat model to propose funding decisions and scope
// narratives. Its output is a proposal only; the policy engine decides what
// executes.
type OpenAIAdvisor struct {
	client *openai.Client
	model  string
	temp   float32
	logger *zap.Logger
}

// NewOpenAIAdvisor creates a model-backed advisor.
func NewOpenAIAdvisor(apiKey, model string, temperature float32, logger *zap.Logger) *OpenAIAdvisor {
	return &OpenAIAdvisor{
		client: openai.NewClient(apiKey),
		model:  model,
		temp:   temperature,
		logger: logger,
	}
}

type proposalPayload struct {
	Decision    string   `json:"decision"`
	Confidence  int      `json:"confidence"`
	ReasonCodes []string `json:"reason_codes"`
	Rationale   string   `json:"rationale"`
}

// Propose requests a decision tuple for the candidate. The raw tuple is
// returned unvalidated; clamping and reason-code filtering happen in the
// policy engine.
func (a *OpenAIAdvisor) Propose(ctx context.Context, candidate *models.ProjectCandidate, budget models.BudgetStatus) (policy.Proposal, error) {
	prompt := a.buildProposalPrompt(candidate, budget)

	a.logger.Debug("Sending proposal request to OpenAI",
		zap.String("project_id", candidate.ProjectID))

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temp,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a municipal capital projects analyst. Recommend funding decisions " +
					"for proposed capital work. You only propose; a separate authorization policy " +
					"decides whether your recommendation executes. Respond with ONLY a valid JSON object.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return policy.Proposal{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return policy.Proposal{}, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var payload proposalPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		extracted, ok := extractJSON(content)
		if !ok || json.Unmarshal([]byte(extracted), &payload) != nil {
			a.logger.Error("Failed to parse OpenAI proposal response",
				zap.Error(err), zap.String("content", content))
			return policy.Proposal{}, fmt.Errorf("failed to parse proposal response: %w", err)
		}
	}

	a.logger.Info("Proposal received",
		zap.String("project_id", candidate.ProjectID),
		zap.String("decision", payload.Decision),
		zap.Int("confidence", payload.Confidence))

	return policy.Proposal{
		Decision:    payload.Decision,
		Confidence:  payload.Confidence,
		ReasonCodes: payload.ReasonCodes,
		Rationale:   payload.Rationale,
	}, nil
}

// Scope requests a short scope narrative for a newly formed candidate.
func (a *OpenAIAdvisor) Scope(ctx context.Context, issue *models.Issue, estimate ScopeEstimate) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temp,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a municipal capital projects analyst. Write concise project scope " +
					"statements for capital work orders. Respond with plain text, 2-4 sentences, no markdown.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(`Write a scope statement for this capital project.

Issue: %s
Description: %s
Category: %s
Severity: %d/5
Population affected: %d
Legal mandate: %t
Planned crew: %d-person %s for %d weeks
Estimated cost: $%.0f`,
					issue.Title, issue.Description, issue.Category, issue.Severity,
					issue.PopulationAffected, issue.LegalMandate,
					estimate.CrewSize, estimate.RequiredCrewType, estimate.EstimatedWeeks,
					estimate.EstimatedCost),
			},
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdvisor) buildProposalPrompt(candidate *models.ProjectCandidate, budget models.BudgetStatus) string {
	return fmt.Sprintf(`Recommend a funding decision for this capital project candidate:

**Candidate:**
- Project: %s (%s)
- Category: %s
- Risk score: %.1f/8
- Estimated cost: $%.0f over %d weeks
- Population affected: %d
- Legal mandate: %t

**Budget position (advisory):**
- Quarterly total: $%.0f
- Already allocated: $%.0f
- Remaining: $%.0f

Guidelines: approve legal mandates and high-risk work (risk >= 5); reject low-risk work
(risk < 3); weigh remaining budget for everything in between. Be honest about your
confidence rather than defaulting to a high number.

Respond with ONLY a valid JSON object (no markdown, no explanation) with this exact structure:
{
  "decision": "APPROVE" or "REJECT",
  "confidence": integer 0-100,
  "reason_codes": [array drawn from: HIGH_COST, LEGAL_MANDATE, BUDGET_SHORTFALL, LOW_CONFIDENCE, CONFLICTING_PRIORITIES, HIGH_RISK, SAFETY_CRITICAL, HIGH_POPULATION_IMPACT, WITHIN_POLICY, LOW_PRIORITY, BUDGET_OPTIMIZED],
  "rationale": "string, 1-3 sentences"
}`,
		candidate.ProjectID, candidate.Title,
		candidate.Category,
		candidate.RiskScore,
		candidate.EstimatedCost, candidate.EstimatedWeeks,
		candidate.PopulationAffected,
		candidate.LegalMandate,
		budget.Total, budget.Allocated, budget.Remaining)
}

// extractJSON pulls the first balanced JSON object out of surrounding text,
// such as a markdown code fence.
func extractJSON(content string) (string, bool) {
	start := -1
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	braceCount := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		char := content[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch char {
		case '\\':
			escapeNext = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				braceCount++
			}
		case '}':
			if !inString {
				braceCount--
				if braceCount == 0 {
					return content[start : i+1], true
				}
			}
		}
	}
	return "", false
}
