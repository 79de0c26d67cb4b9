package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"mendgate/internal/types"
)

// parseVoteResponse decodes one judge's JSON reply. Models often wrap JSON in
// a markdown code fence, so that is stripped first.
func parseVoteResponse(model, response string) (types.JudgeVote, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var parsed struct {
		Approved   bool     `json:"approved"`
		Confidence float64  `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
		Issues     []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return types.JudgeVote{}, fmt.Errorf("failed to parse vote JSON: %w", err)
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	return types.JudgeVote{
		Model:      model,
		Approved:   parsed.Approved,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Issues:     parsed.Issues,
	}, nil
}
