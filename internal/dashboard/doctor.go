package dashboard

import (
	"context"
	"strings"

	"github.com/drfirst/clinical-intel/internal/charts"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
)

// Doctor section identifiers.
const (
	SectionPatientOverview = "patient-overview"
	SectionClinicalRisk    = "clinical-risk"
	SectionCareGaps        = "care-gaps"
	SectionCoverage        = "cost-coverage"
	SectionCoPilot         = "co-pilot"
	SectionSelectPatient   = "select-patient"
)

// SelectPatientNotice is shown when no hero patient can be selected.
const SelectPatientNotice = "Select a patient to view insights."

// ResolvePatient picks the patient to show: the requested one when it is a
// hero patient, otherwise the first hero patient. It returns "" when there
// are none.
func ResolvePatient(ids []string, requested string) string {
	for _, id := range ids {
		if id == requested {
			return id
		}
	}
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Doctor is the patient-centric dashboard for one hero patient.
func (b *Builder) Doctor(ctx context.Context, patientID string) Page {
	heroes := b.doctor(ctx, "hero_patients")
	ids := patient.IDs(heroes)

	page := Page{
		View:     view.Doctor,
		Title:    "Clinical Intelligence - Doctor View",
		Subtitle: "Patient-centric insights derived from longitudinal records. All data is de-identified.",
		Patients: ids,
	}

	pid := ResolvePatient(ids, patientID)
	if pid == "" {
		page.Sections = []Section{{
			ID:     SectionSelectPatient,
			Title:  "Select Patient",
			Blocks: []Block{notice(SelectPatientNotice)},
		}}
		return page
	}
	page.SelectedPatient = pid

	p := patient.ProfileFrom(pid, heroes.Field(pid))
	page.Sections = []Section{
		b.patientOverview(ctx, p),
		b.clinicalRisk(ctx, p),
		b.careGaps(ctx, p),
		b.coverage(ctx, p),
		b.coPilot(ctx, p),
	}
	return page
}

func (b *Builder) patientOverview(ctx context.Context, p patient.Profile) Section {
	s := Section{
		ID:     SectionPatientOverview,
		Title:  "Patient Overview",
		Header: "Patient Overview - The patient, explained",
		Blocks: []Block{
			list("Patient Details", []string{
				"Name: " + p.Name,
				"Age: " + p.Age,
				"Gender: " + p.Gender,
				"Archetype: " + p.Archetype,
			}),
			heading("Last Visit Summary"),
			text(b.patients.LastVisitSummary(ctx, p.ID)),
			box("AI Patient Narrative", p.State),
		},
	}
	s.Blocks = append(s.Blocks, table("Conditions", b.patients.Conditions(ctx, p.ID)))
	return s
}

func (b *Builder) clinicalRisk(ctx context.Context, p patient.Profile) Section {
	s := Section{
		ID:     SectionClinicalRisk,
		Title:  "Clinical Risk & Predictions",
		Header: "Clinical Risk & Predictions",
		Blocks: []Block{
			box("AI Patient State", p.State),
			heading("Risk Gauge"),
		},
	}
	if p.RiskScore != nil {
		s.Blocks = append(s.Blocks, chart(charts.PatientRiskGauge(*p.RiskScore)))
	} else {
		s.Blocks = append(s.Blocks, notice("Risk score data not available."))
	}
	s.Blocks = append(s.Blocks,
		box("Prediction", p.Predictions),
		table("Observations", b.patients.Observations(ctx, p.ID)),
	)
	return s
}

func (b *Builder) careGaps(ctx context.Context, p patient.Profile) Section {
	s := Section{
		ID:     SectionCareGaps,
		Title:  "Care Gaps & Coordination",
		Header: "Care Gaps & Coordination",
		Blocks: []Block{
			box("AI Gap Alert", p.CareGaps),
			heading("Suggested Action"),
			text(p.SuggestedAction),
		},
	}

	if timeline := charts.EncounterTimeline(b.patients.Encounters(ctx, p.ID)); !timeline.Empty() {
		s.Blocks = append(s.Blocks, heading("Encounter Timeline"), chart(timeline))
	}
	s.Blocks = append(s.Blocks, table("Detected Care Gaps", b.patients.CareGaps(ctx, p.ID)))
	return s
}

func (b *Builder) coverage(ctx context.Context, p patient.Profile) Section {
	s := Section{
		ID:     SectionCoverage,
		Title:  "Cost & Coverage Impact",
		Header: "Cost & Coverage Impact (Doctor-Relevant)",
		Blocks: []Block{
			box("AI Cost & Coverage Insight", p.CostCoverage),
			table("Coverage", b.patients.Insurance(ctx, p.ID)),
		},
	}

	// Medication continuity is listed rather than tabled: one table per section.
	meds := b.patients.Medications(ctx, p.ID)
	var items []string
	for _, row := range meds.Rows {
		items = append(items, strings.Join(nonEmpty(row), " - "))
	}
	s.Blocks = append(s.Blocks, list("Medication Continuity", items))
	return s
}

func (b *Builder) coPilot(ctx context.Context, p patient.Profile) Section {
	s := Section{
		ID:     SectionCoPilot,
		Title:  "AI Clinical Co-Pilot",
		Header: "AI Clinical Co-Pilot",
		Blocks: []Block{
			box("AI Temporal Reasoning", p.TemporalReasoning),
			list("AI-Recommended Focus", p.RecommendedFocus),
			box("AI Conclusion", p.Conclusion),
		},
	}
	for _, prompt := range p.CoPilot {
		s.Blocks = append(s.Blocks, expander(prompt.Question, text(prompt.Answer)))
	}

	conf := p.Confidence
	if !conf.Is(insight.KindTable) {
		conf = b.doctor(ctx, "confidence_and_limitations")
	}
	s.Blocks = append(s.Blocks, confidenceBlocks(conf))
	s.Blocks = append(s.Blocks, footnoteBlocks(b.doctor(ctx, "agent_footnote"))...)
	return s
}

func nonEmpty(cells []string) []string {
	out := cells[:0:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
