package voice

import (
	"fmt"
	"strings"

	sessiondomain "garagecall_backend/internal/sessions/domain"
)

// Assistant is the conversation configuration sent to the voice platform
// for a single call.
type Assistant struct {
	FirstMessage       string          `json:"firstMessage"`
	Model              AssistantModel  `json:"model"`
	MaxDurationSeconds int             `json:"maxDurationSeconds"`
	EndCallPhrases     []string        `json:"endCallPhrases,omitempty"`
	AnalysisPlan       *AnalysisPlan   `json:"analysisPlan,omitempty"`
	Voice              *AssistantVoice `json:"voice,omitempty"`
}

type AssistantModel struct {
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Messages []AssistantMessage `json:"messages"`
}

type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AssistantVoice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// AnalysisPlan instructs the platform to extract structured data from the
// finished conversation. The schema mirrors calls/domain.Extraction.
type AnalysisPlan struct {
	StructuredDataSchema map[string]any `json:"structuredDataSchema"`
}

// BuildAssistant produces the conversation config for calling one repair
// shop about one damage report. The prompt keeps the call brief and makes
// sure the agent asks for a price range and a turnaround estimate before
// closing politely.
func BuildAssistant(shop sessiondomain.Shop, vehicle sessiondomain.VehicleInfo, damage sessiondomain.DamageSummary) Assistant {
	var sb strings.Builder
	sb.WriteString("You are a friendly assistant calling an auto repair shop on behalf of a customer to request a repair quote. Keep the call short and to the point.\n\n")
	fmt.Fprintf(&sb, "You are calling %s.\n\n", shop.Name)
	fmt.Fprintf(&sb, "Vehicle: %d %s %s", vehicle.Year, vehicle.Make, vehicle.Model)
	if vehicle.Color != "" {
		fmt.Fprintf(&sb, " (%s)", vehicle.Color)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Damage severity: %s\n", damage.Severity)
	if len(damage.DamagedParts) > 0 {
		fmt.Fprintf(&sb, "Damaged parts: %s\n", strings.Join(damage.DamagedParts, ", "))
	}
	if len(damage.LikelyRepairs) > 0 {
		fmt.Fprintf(&sb, "Likely repairs needed: %s\n", strings.Join(damage.LikelyRepairs, ", "))
	}
	if damage.Summary != "" {
		fmt.Fprintf(&sb, "Damage description: %s\n", damage.Summary)
	}
	sb.WriteString("\nDuring the call you must:\n")
	sb.WriteString("1. Briefly describe the vehicle and the damage.\n")
	sb.WriteString("2. Ask whether the shop can handle this repair.\n")
	sb.WriteString("3. Ask for a rough price range (low and high estimate).\n")
	sb.WriteString("4. Ask how long the repair would take.\n")
	sb.WriteString("5. Thank them and close the call politely.\n\n")
	sb.WriteString("Do not negotiate, do not book an appointment, and do not share customer contact details. If the shop cannot give an estimate over the phone, note that and end the call.")

	return Assistant{
		FirstMessage: fmt.Sprintf(
			"Hi, I'm calling on behalf of a customer to get a quick repair quote for a %d %s %s. Do you have a moment?",
			vehicle.Year, vehicle.Make, vehicle.Model),
		Model: AssistantModel{
			Provider: "openai",
			Model:    "gpt-4o",
			Messages: []AssistantMessage{
				{Role: "system", Content: sb.String()},
			},
		},
		MaxDurationSeconds: 300,
		EndCallPhrases:     []string{"goodbye", "have a great day"},
		AnalysisPlan:       &AnalysisPlan{StructuredDataSchema: extractionSchema()},
	}
}

func extractionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quoteProvided":     map[string]any{"type": "boolean", "description": "Whether the shop gave any price estimate"},
			"priceEstimateLow":  map[string]any{"type": "number", "description": "Low end of the quoted price range in dollars"},
			"priceEstimateHigh": map[string]any{"type": "number", "description": "High end of the quoted price range in dollars"},
			"timeframe":         map[string]any{"type": "string", "description": "Estimated repair duration, e.g. '3-5 business days'"},
			"canHandleRepair":   map[string]any{"type": "boolean", "description": "Whether the shop can perform this repair"},
			"notes":             map[string]any{"type": "string", "description": "Any other relevant details from the call"},
		},
		"required": []string{"quoteProvided", "canHandleRepair"},
	}
}
