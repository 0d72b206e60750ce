package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rawblock/geoshield-engine/internal/vector"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// ──────────────────────────────────────────────────────────────────────
// Risk Evaluator — full path
//
// The fingerprint and up to five neighbours are handed to a generative
// model in a single prompt that demands a JSON object. A parse failure
// is not an error: the raw text is downgraded into a fallback MEDIUM
// evaluation, and a missing model falls back to the lite path entirely.
// ──────────────────────────────────────────────────────────────────────

// fullResponse is the JSON shape requested from the model.
type fullResponse struct {
	RiskAssessment      string   `json:"riskAssessment"`
	Confidence          int      `json:"confidence"`
	Explanation         string   `json:"explanation"`
	Patterns            []string `json:"patterns"`
	TechnicalIndicators []string `json:"technicalIndicators"`
	SpoofingTechniques  []string `json:"spoofingTechniques"`
	Recommendations     []string `json:"recommendations"`
	SimilarityInsights  string   `json:"similarityInsights"`
}

// EvaluateFull runs the generative path. Without a configured generator,
// or when the model call fails outright, the lite result is returned
// instead.
func (e *Evaluator) EvaluateFull(ctx context.Context, fp *models.SessionFingerprint, neighbours []vector.Neighbor) *models.RiskEvaluation {
	if e.generator == nil {
		return e.EvaluateLite(ctx, fp, neighbours)
	}

	prompt, err := e.buildFullPrompt(fp, neighbours)
	if err != nil {
		e.log.Warn("full evaluator prompt build failed, using lite path", "error", err)
		return e.EvaluateLite(ctx, fp, neighbours)
	}

	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		e.log.Warn("generative model unavailable, using lite path", "generator", e.generator.Name(), "error", err)
		return e.EvaluateLite(ctx, fp, neighbours)
	}

	parsed, ok := parseFullResponse(text)
	if !ok {
		// The model answered but not in the requested shape. Keep its
		// prose as the explanation rather than discarding the work.
		return &models.RiskEvaluation{
			Tier:           models.TierMedium,
			Confidence:     70,
			Explanation:    strings.TrimSpace(text),
			Patterns:       []string{"model_response_not_json"},
			ProcessingMode: models.ProcessingFull,
		}
	}

	factors := append([]string{}, parsed.TechnicalIndicators...)
	factors = append(factors, parsed.SpoofingTechniques...)

	return &models.RiskEvaluation{
		Tier:               tierFromAssessment(parsed.RiskAssessment),
		Confidence:         clampConfidence(parsed.Confidence),
		Explanation:        parsed.Explanation,
		RiskFactors:        factors,
		Patterns:           parsed.Patterns,
		Recommendations:    parsed.Recommendations,
		SimilarityInsights: parsed.SimilarityInsights,
		ProcessingMode:     models.ProcessingFull,
	}
}

func (e *Evaluator) buildFullPrompt(fp *models.SessionFingerprint, neighbours []vector.Neighbor) (string, error) {
	fpJSON, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a location-spoofing and fraud analyst. Assess the following session fingerprint.\n\n")
	b.WriteString("Session fingerprint:\n")
	b.Write(fpJSON)
	b.WriteString("\n\n")

	if len(neighbours) > 0 {
		limit := len(neighbours)
		if limit > maxNeighboursInPrompt {
			limit = maxNeighboursInPrompt
		}
		b.WriteString("Most similar past sessions (cosine similarity, overall risk, indicators):\n")
		for _, n := range neighbours[:limit] {
			fmt.Fprintf(&b, "- similarity %.3f, risk %s, indicators: %s\n",
				n.Score, n.Fingerprint.Summary.OverallRisk,
				strings.Join(n.Fingerprint.Summary.SpoofingIndicators, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with ONLY a JSON object, no prose and no code fences, with exactly these fields:\n")
	b.WriteString(`{"riskAssessment": "LOW|MEDIUM|HIGH", "confidence": 0-100, "explanation": "...", ` +
		`"patterns": [...], "technicalIndicators": [...], "spoofingTechniques": [...], ` +
		`"recommendations": [...], "similarityInsights": "..."}`)
	return b.String(), nil
}

// parseFullResponse tolerates models that wrap the JSON in code fences
// or leading prose, by scanning for the outermost object.
func parseFullResponse(text string) (fullResponse, bool) {
	var parsed fullResponse

	candidate := strings.TrimSpace(text)
	candidate = strings.TrimPrefix(candidate, "```json")
	candidate = strings.TrimPrefix(candidate, "```")
	candidate = strings.TrimSuffix(candidate, "```")
	candidate = strings.TrimSpace(candidate)

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return parsed, false
	}
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &parsed); err != nil {
		return parsed, false
	}
	if parsed.RiskAssessment == "" {
		return parsed, false
	}
	return parsed, true
}

func tierFromAssessment(s string) models.RiskTier {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return models.TierLow
	case "MEDIUM":
		return models.TierMedium
	case "HIGH":
		return models.TierHigh
	default:
		return models.TierUnknown
	}
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
