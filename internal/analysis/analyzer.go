// Package analysis turns a free-text damage description plus optional photos
// into a structured damage summary using a Gemini model with a constrained
// JSON response schema.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"garagecall_backend/internal/sessions/domain"
	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/config"
	"garagecall_backend/platform/logger"
)

// PhotoFetcher loads a stored damage photo by object key.
type PhotoFetcher interface {
	Fetch(ctx context.Context, key string) (data []byte, contentType string, err error)
}

// generateFunc is the model call; swapped out in tests.
type generateFunc func(ctx context.Context, prompt string, photos []photo) (string, error)

type photo struct {
	data        []byte
	contentType string
}

// Analyzer produces damage summaries from session input.
type Analyzer struct {
	model    string
	photos   PhotoFetcher
	log      *logger.Logger
	generate generateFunc
}

// NewAnalyzer creates an Analyzer backed by the Gemini API. The photo
// fetcher may be nil when photo storage is disabled.
func NewAnalyzer(ctx context.Context, cfg config.AIConfig, photos PhotoFetcher, log *logger.Logger) (*Analyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	a := &Analyzer{
		model:  cfg.GetAnalysisModel(),
		photos: photos,
		log:    log,
	}
	a.generate = func(ctx context.Context, prompt string, photos []photo) (string, error) {
		parts := []*genai.Part{genai.NewPartFromText(prompt)}
		for _, p := range photos {
			parts = append(parts, genai.NewPartFromBytes(p.data, p.contentType))
		}
		contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

		resp, err := client.Models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   damageSchema(),
		})
		if err != nil {
			return "", apperr.External("damage analysis model call failed", err)
		}
		return resp.Text(), nil
	}
	return a, nil
}

// Analyze produces a structured damage summary for the session.
func (a *Analyzer) Analyze(ctx context.Context, session *domain.Session) (domain.DamageSummary, error) {
	prompt := buildAnalysisPrompt(session)

	var photos []photo
	if a.photos != nil {
		for _, key := range session.PhotoKeys {
			data, contentType, err := a.photos.Fetch(ctx, key)
			if err != nil {
				// A missing photo degrades the analysis, it does not abort it.
				a.log.Warn("skipping unreadable damage photo", "key", key, "error", err)
				continue
			}
			photos = append(photos, photo{data: data, contentType: contentType})
		}
	}

	raw, err := a.generate(ctx, prompt, photos)
	if err != nil {
		return domain.DamageSummary{}, err
	}
	return parseDamageSummary(raw)
}

func buildAnalysisPrompt(session *domain.Session) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following vehicle damage report and produce a structured assessment.\n\n")
	if v := session.Vehicle; v != nil {
		fmt.Fprintf(&sb, "Vehicle: %d %s %s", v.Year, v.Make, v.Model)
		if v.Color != "" {
			fmt.Fprintf(&sb, " (%s)", v.Color)
		}
		sb.WriteString("\n")
	}
	if session.Description != "" {
		fmt.Fprintf(&sb, "Customer description: %s\n", session.Description)
	}
	if len(session.PhotoKeys) > 0 {
		fmt.Fprintf(&sb, "Damage photos are attached (%d).\n", len(session.PhotoKeys))
	}
	sb.WriteString("\nClassify severity as minor, moderate, or severe. List the damaged parts, the likely repairs a shop would perform, a 1-10 severity score, and a two-sentence summary suitable for reading over the phone.")
	return sb.String()
}

func parseDamageSummary(raw string) (domain.DamageSummary, error) {
	var summary domain.DamageSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return domain.DamageSummary{}, apperr.External("damage analysis returned malformed JSON", err)
	}
	switch summary.Severity {
	case "minor", "moderate", "severe":
	default:
		return domain.DamageSummary{}, apperr.External(
			fmt.Sprintf("damage analysis returned invalid severity %q", summary.Severity), nil)
	}
	if summary.SeverityScore < 1 {
		summary.SeverityScore = 1
	}
	if summary.SeverityScore > 10 {
		summary.SeverityScore = 10
	}
	return summary, nil
}

func damageSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"severity": {
				Type: genai.TypeString,
				Enum: []string{"minor", "moderate", "severe"},
			},
			"damagedParts": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"likelyRepairs": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"severityScore": {
				Type:        genai.TypeInteger,
				Description: "Overall severity from 1 (cosmetic) to 10 (structural)",
			},
			"summary": {Type: genai.TypeString},
		},
		Required: []string{"severity", "damagedParts", "likelyRepairs", "severityScore", "summary"},
	}
}
