package dashboard

import (
	"context"
	"strconv"

	"github.com/drfirst/clinical-intel/internal/charts"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
)

// Admin section identifiers.
const (
	SectionExecutive    = "executive-overview"
	SectionRisk         = "risk-stratification"
	SectionCoordination = "care-coordination"
	SectionCost         = "cost-insurance"
	SectionPredictive   = "predictive"
	SectionStrategy     = "strategy-console"
)

// AIResponsePrefix precedes every derived answer in the strategy console.
const AIResponsePrefix = "AI Response: "

// Admin is the population-level dashboard.
func (b *Builder) Admin(ctx context.Context) Page {
	return Page{
		View:     view.Admin,
		Title:    "Hospital Intelligence - Admin View",
		Subtitle: "Population-level clinical intelligence derived from longitudinal records. All insights are de-identified and HIPAA-safe.",
		Sections: []Section{
			b.executiveOverview(ctx),
			b.riskStratification(ctx),
			b.careCoordination(ctx),
			b.costInsurance(ctx),
			b.predictive(ctx),
			b.strategyConsole(ctx),
		},
	}
}

func (b *Builder) executiveOverview(ctx context.Context) Section {
	s := Section{
		ID:     SectionExecutive,
		Title:  "Executive Overview",
		Header: "Executive Overview - Why the system is under stress",
		Blocks: []Block{box("AI Executive Brief", b.admin(ctx, "ai_executive_brief").String())},
	}

	km := b.admin(ctx, "key_metrics")
	if km.Is(insight.KindTable) {
		s.Blocks = append(s.Blocks, metrics(
			Metric{Label: "Patients Analyzed", Value: km.Field("patients_analyzed").String()},
			Metric{Label: "High-Risk Cohort", Value: "~" + km.Field("high_risk_percentage").String() + "%"},
			Metric{Label: "Avoidable Cost Index", Value: km.Field("avoidable_cost_index").String()},
			Metric{Label: "AI Confidence", Value: km.Field("ai_confidence").String()},
		))
	} else {
		s.Blocks = append(s.Blocks, notice("Key metrics data not available."))
	}

	dist := b.admin(ctx, "risk_distribution")
	if !dist.Is(insight.KindTable) {
		s.Blocks = append(s.Blocks, notice("Risk distribution data not available."))
		return s
	}
	s.Blocks = append(s.Blocks,
		chart(charts.RiskDistribution(dist)),
		caption("Interpretation: The high-risk cohort drives the majority of resource intensity. Focusing interventions here yields the highest ROI."),
		caption("Note: Avoidable Cost Index represents the ratio of costs associated with potentially preventable events (e.g., emergency visits for chronic conditions) to total care costs. A score > 0.5 indicates significant opportunity for savings."),
	)
	return s
}

func (b *Builder) riskStratification(ctx context.Context) Section {
	s := Section{
		ID:     SectionRisk,
		Title:  "Risk Stratification",
		Header: "Risk Stratification - From populations to priorities",
		Blocks: []Block{
			box("AI Root Cause Insight", b.admin(ctx, "ai_root_cause_insight").String()),
			heading("Risk Ownership Lens"),
		},
	}

	lens := patient.TableFrom(b.admin(ctx, "risk_ownership_lens"))
	if lens.Empty() {
		s.Blocks = append(s.Blocks, notice("Risk ownership data not available."))
	} else {
		s.Blocks = append(s.Blocks, table("Risk Ownership Lens", lens))
	}

	equity := b.admin(ctx, "equity_heatmap")
	if !equity.Is(insight.KindTable) {
		s.Blocks = append(s.Blocks, notice("Equity data not available."))
		return s
	}
	s.Blocks = append(s.Blocks,
		chart(charts.EquityHeatmap(equity.Field("disparities"))),
		caption("Interpretation: Darker areas indicate compounding risk factors. Urban and Hispanic cohorts show higher instability, suggesting that social determinants and insurance churn are amplifying clinical risk in these groups."),
	)
	return s
}

func (b *Builder) careCoordination(ctx context.Context) Section {
	return Section{
		ID:     SectionCoordination,
		Title:  "Care Coordination",
		Header: "Care Coordination - Where the system breaks",
		Blocks: []Block{
			box("AI Care Breakdown Prediction", b.admin(ctx, "ai_care_breakdown_prediction").String()),
			box("AI Failure Pattern Insight", b.admin(ctx, "ai_failure_pattern_insight").String()),
			chart(charts.CareFlowSankey()),
			caption("Interpretation: The flow thickness represents patient volume. Note the significant diversion from Primary Care to Emergency, bypassing Specialists, a hallmark of fragmented coordination."),
		},
	}
}

func (b *Builder) costInsurance(ctx context.Context) Section {
	s := Section{
		ID:     SectionCost,
		Title:  "Cost & Insurance Intelligence",
		Header: "Cost & Insurance Intelligence - The hidden engine of risk",
		Blocks: []Block{box("AI Financial Leakage Insight", b.admin(ctx, "ai_financial_leakage_insight").String())},
	}

	cost := b.admin(ctx, "cost_treemap_data")
	if treemap := charts.CostTreemapFrom(cost); cost.Is(insight.KindTable) && !treemap.Empty() {
		s.Blocks = append(s.Blocks,
			chart(treemap),
			caption("Interpretation: Medications are the primary cost driver, followed by Encounters. The high medication spend relative to outcomes suggests adherence issues or lack of generic utilization."),
		)
	} else {
		s.Blocks = append(s.Blocks, notice("Cost breakdown data not available."))
	}

	aci := b.admin(ctx, "avoidable_cost_index")
	s.Blocks = append(s.Blocks, metrics(Metric{Label: "Avoidable Cost Index", Value: aci.String()}))
	if n, ok := aci.Number(); ok {
		s.Blocks = append(s.Blocks, caption(
			"Note: Avoidable Cost Index ("+aci.String()+") indicates that nearly "+
				strconv.FormatFloat(n*100, 'f', 0, 64)+"% of acute costs could be mitigated through better upstream preventive care and coordination."))
	}
	return s
}

func (b *Builder) predictive(ctx context.Context) Section {
	s := Section{
		ID:     SectionPredictive,
		Title:  "Predictive & What-If Analytics",
		Header: "Predictive & What-If Analytics - Futures, not reports",
		Blocks: []Block{
			box("AI Forecast", b.admin(ctx, "ai_forecast").String()),
			box("Counterfactual Intelligence", b.admin(ctx, "counterfactual_intelligence").String()),
		},
	}

	if hosp := b.admin(ctx, "hospitalization_risk_distribution"); hosp.Is(insight.KindTable) {
		if c := charts.HospitalizationScatter(hosp); !c.Empty() {
			s.Blocks = append(s.Blocks,
				chart(c),
				caption("Interpretation: Higher risk scores correlate with age, but significant variance exists. Young patients with high risk scores represent the 'Preventive Failure' archetype."),
			)
		}
	}
	return s
}

func (b *Builder) strategyConsole(ctx context.Context) Section {
	s := Section{
		ID:     SectionStrategy,
		Title:  "AI Strategy Console",
		Header: "AI Strategy Console - Why this is scalable AI",
	}

	prompts := b.admin(ctx, "pre_loaded_prompts")
	if prompts.Is(insight.KindList) {
		questions := prompts.Strings()
		for i, answer := range b.answers(ctx, questions) {
			s.Blocks = append(s.Blocks, expander(questions[i], text(AIResponsePrefix+answer)))
		}
	} else {
		s.Blocks = append(s.Blocks, notice("Strategy prompts not available."))
	}

	s.Blocks = append(s.Blocks, heading("AI Governance & Trust Panel"))
	gov := b.admin(ctx, "ai_governance")
	if gov.Is(insight.KindTable) {
		var items []string
		for _, k := range gov.Keys() {
			items = append(items, capitalize(k)+": "+gov.Field(k).String())
		}
		s.Blocks = append(s.Blocks, list("", items))
	} else {
		s.Blocks = append(s.Blocks, notice("Governance data not available."))
	}

	s.Blocks = append(s.Blocks, confidenceBlocks(b.doctor(ctx, "confidence_and_limitations")))

	s.Blocks = append(s.Blocks, heading("Hero Insights"))
	alerts := b.admin(ctx, "ai_alerts")
	if alerts.Is(insight.KindList) {
		for _, a := range alerts.Strings() {
			s.Blocks = append(s.Blocks, box("Strategic Alert", a))
		}
	} else {
		s.Blocks = append(s.Blocks, notice("Hero insights data not available."))
	}

	s.Blocks = append(s.Blocks, footnoteBlocks(b.doctor(ctx, "agent_footnote"))...)
	return s
}
