package patient

import (
	"github.com/drfirst/clinical-intel/internal/insight"
)

// Prompt is one canned co-pilot question with its prepared answer.
type Prompt struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Profile is a hero patient's demographics and narrative insights. Missing
// text fields hold insight.PatientPlaceholder.
type Profile struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Age               string        `json:"age"`
	Gender            string        `json:"gender"`
	Archetype         string        `json:"archetype"`
	State             string        `json:"ai_patient_state"`
	Predictions       string        `json:"predictions"`
	CareGaps          string        `json:"care_gaps"`
	SuggestedAction   string        `json:"suggested_action"`
	CostCoverage      string        `json:"cost_coverage_insight"`
	TemporalReasoning string        `json:"ai_temporal_reasoning"`
	Conclusion        string        `json:"ai_conclusion"`
	RiskScore         *float64      `json:"risk_score,omitempty"`
	RecommendedFocus  []string      `json:"ai_recommended_focus"`
	CoPilot           []Prompt      `json:"co_pilot_prompts"`
	Confidence        insight.Value `json:"confidence_and_limitations"`
}

// ProfileFrom reads a hero patient entry.
func ProfileFrom(id string, v insight.Value) Profile {
	text := func(key string) string {
		return v.Field(key).Or(insight.PatientPlaceholder)
	}

	p := Profile{
		ID:                id,
		Name:              text("name"),
		Age:               text("age"),
		Gender:            text("gender"),
		Archetype:         text("archetype"),
		State:             text("ai_patient_state"),
		Predictions:       text("predictions"),
		CareGaps:          text("care_gaps"),
		SuggestedAction:   text("suggested_action"),
		CostCoverage:      text("cost_coverage_insight"),
		TemporalReasoning: text("ai_temporal_reasoning"),
		Conclusion:        text("ai_conclusion"),
		RecommendedFocus:  v.Field("ai_recommended_focus").Strings(),
		Confidence:        v.Field("confidence_and_limitations"),
	}

	if score, ok := v.Field("risk_score").Number(); ok {
		p.RiskScore = &score
	}

	prompts := v.Field("co_pilot_prompts")
	for _, q := range prompts.Keys() {
		p.CoPilot = append(p.CoPilot, Prompt{Question: q, Answer: prompts.Field(q).String()})
	}
	return p
}

// IDs returns hero patient identifiers in document order.
func IDs(heroPatients insight.Value) []string {
	return heroPatients.Keys()
}
