package dashboard

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/agent"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
	"github.com/drfirst/clinical-intel/pkg/workerpool"
)

// Deriver answers free-text questions for the strategy console. It must not
// fail; errors are replaced by fallback text upstream.
type Deriver interface {
	DeriveInsight(ctx context.Context, query string) string
}

// Builder composes pages. It holds no per-request state and is safe for
// concurrent use.
type Builder struct {
	insights *insight.Store
	patients *patient.Service
	agent    Deriver
	pool     *workerpool.Pool
	logger   *zap.Logger
}

// NewBuilder creates a page builder
func NewBuilder(insights *insight.Store, patients *patient.Service, deriver Deriver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		insights: insights,
		patients: patients,
		agent:    deriver,
		pool:     workerpool.New("strategy-prompts", workerpool.DefaultConfig(), logger),
		logger:   logger,
	}
}

// WithPool shares p for prompt derivation, bounding backend calls across
// builders and requests.
func (b *Builder) WithPool(p *workerpool.Pool) *Builder {
	if p != nil {
		b.pool = p
	}
	return b
}

// Build renders the page for a view. patientID only matters for the doctor
// view.
func (b *Builder) Build(ctx context.Context, id view.ID, patientID string) Page {
	switch id {
	case view.Admin:
		return b.Admin(ctx)
	case view.Doctor:
		return b.Doctor(ctx, patientID)
	}
	return b.Landing(ctx)
}

// Landing is the unauthenticated page shown next to the login form.
func (b *Builder) Landing(ctx context.Context) Page {
	return Page{
		View:     view.Landing,
		Title:    "Clinical Intelligence Platform",
		Subtitle: "An AI-powered Clinical & Operational Intelligence Layer. Turning fragmented healthcare data into decisions, not dashboards.",
		Sections: []Section{{
			ID:     "diagnosis",
			Title:  "AI Health System Diagnosis",
			Header: "AI Health System Diagnosis",
			Blocks: []Block{
				box("System-Level Insight", b.admin(ctx, "ai_executive_brief").String()),
			},
		}},
		Footer: "Powered by LLM for intelligent narratives and agentic orchestration. Explainable, governable, and built for enterprise healthcare.",
	}
}

// admin and doctor read a section key for rendering: a value of the wrong
// kind reads as absent.
func (b *Builder) admin(ctx context.Context, key string) insight.Value {
	return b.read(ctx, insight.SectionAdmin, key)
}

func (b *Builder) doctor(ctx context.Context, key string) insight.Value {
	return b.read(ctx, insight.SectionDoctor, key)
}

func (b *Builder) read(ctx context.Context, section, key string) insight.Value {
	return b.insights.Schema().Conform(section, key, b.insights.Get(ctx, section, key))
}

// answers derives every prompt on the pool, keeping prompt order. Prompts
// skipped because the request ended get the fallback text.
func (b *Builder) answers(ctx context.Context, prompts []string) []string {
	out := make([]string, len(prompts))
	done := make([]bool, len(prompts))
	if err := b.pool.Run(ctx, len(prompts), func(ctx context.Context, i int) {
		out[i] = b.agent.DeriveInsight(ctx, prompts[i])
		done[i] = true
	}); err != nil {
		b.logger.Warn("strategy prompts not all derived", zap.Error(err))
	}
	for i := range out {
		if !done[i] {
			out[i] = agent.FallbackResponse
		}
	}
	return out
}

// confidenceBlocks renders a confidence_and_limitations entry.
func confidenceBlocks(v insight.Value) Block {
	const title = "Confidence & Limitations"
	if !v.Is(insight.KindTable) {
		return expander(title, text("Confidence data not available."))
	}
	children := []Block{
		list("Confidence", v.Field("confidence").Strings()),
		list("Limitations", v.Field("limitations").Strings()),
	}
	if d := v.Field("disclaimer"); d.Is(insight.KindText) {
		children = append(children, caption(d.String()))
	}
	return expander(title, children...)
}

// footnoteBlocks renders doctor.agent_footnote.
func footnoteBlocks(v insight.Value) []Block {
	blocks := []Block{heading("Agent Footnote")}
	if !v.Is(insight.KindTable) {
		return append(blocks, notice("Agent footnote data not available."))
	}
	field := func(key string) string { return v.Field(key).Or("Not available") }
	blocks = append(blocks,
		text("Agents Involved: "+field("agents_involved")),
		text("Datasets Analyzed: "+field("datasets_analyzed")),
		text("Population Context: "+field("population_context")),
	)
	if details := patient.TableFrom(v.Field("agent_details")); !details.Empty() {
		blocks = append(blocks, table("Agent Details", details))
	}
	return blocks
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
