// Package charts turns insight data into Plotly-compatible chart
// descriptions. Every renderer is pure; the browser draws the result.
package charts

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/patient"
)

// Trace is one Plotly trace.
type Trace map[string]any

// Chart is a Plotly figure: traces plus layout.
type Chart struct {
	Data   []Trace        `json:"data"`
	Layout map[string]any `json:"layout"`
}

// Empty reports whether c has nothing to draw.
func (c Chart) Empty() bool { return len(c.Data) == 0 }

// JSON encodes c for embedding in a page.
func (c Chart) JSON() (string, error) {
	if c.Data == nil {
		c.Data = []Trace{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func empty(title string) Chart {
	return Chart{Data: []Trace{}, Layout: layout(title)}
}

func layout(title string) map[string]any {
	return map[string]any{
		"title":  map[string]any{"text": title},
		"margin": margin(50, 20, 20, 20),
	}
}

func margin(t, b, l, r int) map[string]int {
	return map[string]int{"t": t, "b": b, "l": l, "r": r}
}

// pairs reads a flat object of label to number, skipping non-numeric entries.
func pairs(v insight.Value) ([]string, []float64) {
	var labels []string
	var values []float64
	for _, k := range v.Keys() {
		n, ok := v.Field(k).Number()
		if !ok {
			continue
		}
		labels = append(labels, k)
		values = append(values, n)
	}
	return labels, values
}

var riskColors = map[string]string{
	"high":   "orange",
	"medium": "yellow",
	"low":    "green",
}

// RiskDistribution is a donut of population share per risk level.
func RiskDistribution(v insight.Value) Chart {
	const title = "Population Risk Distribution"
	labels, values := pairs(v)
	if len(labels) == 0 {
		return empty(title)
	}

	colors := make([]string, len(labels))
	for i, l := range labels {
		if c, ok := riskColors[strings.ToLower(l)]; ok {
			colors[i] = c
		} else {
			colors[i] = "lightgray"
		}
	}

	c := Chart{
		Data: []Trace{{
			"type":   "pie",
			"labels": labels,
			"values": values,
			"hole":   0.4,
			"marker": map[string]any{"colors": colors},
		}},
		Layout: layout(title),
	}
	c.Layout["legend"] = map[string]any{"title": map[string]any{"text": "Risk Level"}}
	return c
}

// RiskByAge is a bar chart of high-risk percentage per age band.
func RiskByAge(v insight.Value) Chart {
	const title = "High-Risk Percentage by Age Band"
	labels, values := pairs(v)
	if len(labels) == 0 {
		return empty(title)
	}

	c := Chart{
		Data: []Trace{{
			"type":         "bar",
			"x":            labels,
			"y":            values,
			"text":         values,
			"textposition": "outside",
			"marker": map[string]any{
				"color":        values,
				"colorscale":   "RdYlGn",
				"reversescale": true,
			},
		}},
		Layout: layout(title),
	}
	c.Layout["xaxis"] = map[string]any{"title": map[string]any{"text": "Age Band"}}
	c.Layout["yaxis"] = map[string]any{"title": map[string]any{"text": "High-Risk (%)"}}
	c.Layout["margin"] = margin(50, 40, 40, 20)
	return c
}

// CostTreemap is a flat treemap of cost per category. Mismatched lengths are
// truncated to the shorter list.
func CostTreemap(labels []string, values []float64) Chart {
	const title = "Cost Breakdown by Category"
	n := min(len(labels), len(values))
	if n == 0 {
		return empty(title)
	}
	labels, values = labels[:n], values[:n]

	return Chart{
		Data: []Trace{{
			"type":    "treemap",
			"labels":  labels,
			"parents": make([]string, n),
			"values":  values,
			"marker": map[string]any{
				"colors":     values,
				"colorscale": "Blues",
			},
		}},
		Layout: layout(title),
	}
}

// CostTreemapFrom reads {"labels": [...], "values": [...]}.
func CostTreemapFrom(v insight.Value) Chart {
	labels := v.Field("labels").Strings()
	var values []float64
	for _, item := range v.Field("values").List() {
		n, ok := item.Number()
		if !ok {
			return CostTreemap(nil, nil)
		}
		values = append(values, n)
	}
	return CostTreemap(labels, values)
}

// defaultCohorts is used when disparities are narrative text with no
// per-cohort figures.
var defaultCohorts = struct {
	names   []string
	factors []float64
}{
	names:   []string{"Urban", "Hispanic", "Other"},
	factors: []float64{1.5, 1.5, 1.0},
}

// EquityHeatmap shows the instability factor per cohort. disparities may be
// an object of cohort to factor, or narrative text, in which case the
// reference cohorts are drawn.
func EquityHeatmap(disparities insight.Value) Chart {
	const title = "Equity Disparities Heatmap"
	var names []string
	var factors []float64

	switch disparities.Kind() {
	case insight.KindTable:
		names, factors = pairs(disparities)
	case insight.KindText:
		names, factors = defaultCohorts.names, defaultCohorts.factors
	}
	if len(names) == 0 {
		return empty(title)
	}

	c := Chart{
		Data: []Trace{{
			"type":         "heatmap",
			"x":            names,
			"y":            []string{"Instability Factor"},
			"z":            [][]float64{factors},
			"colorscale":   "Reds",
			"texttemplate": "%{z}",
		}},
		Layout: layout(title),
	}
	c.Layout["margin"] = margin(50, 40, 40, 20)
	return c
}

// Care flow between settings. Volumes are the reference referral pattern.
var (
	careFlowNodes  = []string{"Primary Care", "Specialist", "Emergency", "Follow-up"}
	careFlowColors = []string{"#2B60DE", "#6495ED", "#FF6347", "#3CB371"}
	careFlowSource = []int{0, 1, 0, 2}
	careFlowTarget = []int{2, 3, 2, 3}
	careFlowValue  = []int{8, 4, 2, 2}
)

// CareFlowSankey draws patient volume between care settings.
func CareFlowSankey() Chart {
	c := Chart{
		Data: []Trace{{
			"type": "sankey",
			"node": map[string]any{
				"pad":       15,
				"thickness": 25,
				"line":      map[string]any{"color": "black", "width": 0.5},
				"label":     careFlowNodes,
				"color":     careFlowColors,
			},
			"link": map[string]any{
				"source": careFlowSource,
				"target": careFlowTarget,
				"value":  careFlowValue,
				"color":  "rgba(200, 200, 200, 0.4)",
			},
		}},
		Layout: layout("Care Flow Sankey Diagram"),
	}
	c.Layout["font"] = map[string]any{"size": 12, "color": "black"}
	return c
}

var bucketScores = map[string]float64{"low": 0.2, "medium": 0.5, "high": 0.8}

// HospitalizationScatter expands a bucket-count distribution into one point
// per patient against a cycling age axis (20-69). Bucket keys are either
// low/medium/high or a numeric score.
func HospitalizationScatter(v insight.Value) Chart {
	const title = "Hospitalization Risk vs Age"
	var ages []int
	var risks []float64

	type bucket struct {
		score float64
		count int
	}
	var buckets []bucket
	for _, k := range v.Keys() {
		score := bucketScore(k)
		count, ok := v.Field(k).Number()
		if !ok || math.IsNaN(score) {
			continue
		}
		buckets = append(buckets, bucket{score: score, count: int(count)})
	}
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].score < buckets[j].score })

	for _, b := range buckets {
		for i := 0; i < b.count; i++ {
			ages = append(ages, 20+len(ages)%50)
			risks = append(risks, b.score)
		}
	}
	if len(ages) == 0 {
		return empty(title)
	}

	c := Chart{
		Data: []Trace{{
			"type": "scatter",
			"mode": "markers",
			"x":    ages,
			"y":    risks,
		}},
		Layout: layout(title),
	}
	c.Layout["xaxis"] = map[string]any{"title": map[string]any{"text": "Age"}}
	c.Layout["yaxis"] = map[string]any{"title": map[string]any{"text": "Risk Score"}}
	c.Layout["margin"] = margin(50, 40, 40, 20)
	return c
}

func bucketScore(key string) float64 {
	if s, ok := bucketScores[strings.ToLower(key)]; ok {
		return s
	}
	if n, ok := insight.Text(key).Number(); ok {
		return n
	}
	return math.NaN()
}

// Gauge bands for individual patient risk.
const (
	GaugeLow    = "#2ecc71"
	GaugeMedium = "#f1c40f"
	GaugeHigh   = "#e74c3c"
)

// ClampRisk bounds score to [0, 1].
func ClampRisk(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(1, score))
}

// PatientRiskGauge draws a 0-1 gauge. Out-of-range scores are clamped.
func PatientRiskGauge(score float64) Chart {
	score = ClampRisk(score)
	c := Chart{
		Data: []Trace{{
			"type":  "indicator",
			"mode":  "gauge+number",
			"value": score,
			"gauge": map[string]any{
				"axis": map[string]any{"range": []float64{0, 1}},
				"bar":  map[string]any{"thickness": 0.25},
				"steps": []map[string]any{
					{"range": []float64{0, 0.4}, "color": GaugeLow},
					{"range": []float64{0.4, 0.7}, "color": GaugeMedium},
					{"range": []float64{0.7, 1.0}, "color": GaugeHigh},
				},
				"threshold": map[string]any{
					"line":      map[string]any{"color": "black", "width": 2},
					"thickness": 0.75,
					"value":     score,
				},
			},
		}},
		Layout: layout("Patient Risk Score"),
	}
	c.Layout["margin"] = margin(60, 20, 20, 20)
	c.Layout["height"] = 300
	return c
}

// EncounterTimeline plots encounters by date, one trace per encounter type.
// The table needs Date and Type columns.
func EncounterTimeline(t patient.Table) Chart {
	const title = "Encounter Timeline"
	dates := t.Column("Date")
	types := t.Column("Type")
	if len(dates) == 0 || len(types) == 0 {
		return empty(title)
	}

	var order []string
	byType := make(map[string][]string)
	for i, typ := range types {
		if _, ok := byType[typ]; !ok {
			order = append(order, typ)
		}
		byType[typ] = append(byType[typ], dates[i])
	}

	symbols := []string{"circle", "square", "diamond", "cross", "x", "triangle-up"}
	c := Chart{Layout: layout(title)}
	for i, typ := range order {
		x := byType[typ]
		y := make([]string, len(x))
		for j := range y {
			y[j] = typ
		}
		c.Data = append(c.Data, Trace{
			"type":   "scatter",
			"mode":   "markers",
			"name":   typ,
			"x":      x,
			"y":      y,
			"marker": map[string]any{"size": 10, "symbol": symbols[i%len(symbols)]},
		})
	}
	c.Layout["xaxis"] = map[string]any{"title": map[string]any{"text": "Date"}, "type": "date"}
	c.Layout["yaxis"] = map[string]any{"title": map[string]any{"text": "Encounter Type"}}
	c.Layout["showlegend"] = false
	c.Layout["margin"] = margin(50, 40, 40, 20)
	return c
}
