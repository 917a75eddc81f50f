// Package dashboard composes the landing, admin and doctor pages from
// insights, patient records and agent answers. Pages are plain data; the
// HTTP layer renders them as HTML or JSON.
package dashboard

import (
	"github.com/drfirst/clinical-intel/internal/charts"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
)

// BlockKind identifies how a block is drawn.
type BlockKind string

const (
	KindBox      BlockKind = "box"
	KindHeading  BlockKind = "heading"
	KindMetrics  BlockKind = "metrics"
	KindChart    BlockKind = "chart"
	KindTable    BlockKind = "table"
	KindList     BlockKind = "list"
	KindExpander BlockKind = "expander"
	KindText     BlockKind = "text"
	KindCaption  BlockKind = "caption"
	KindNotice   BlockKind = "notice"
)

// Metric is one headline figure.
type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Block is one renderable element of a section.
type Block struct {
	Kind     BlockKind      `json:"kind"`
	Title    string         `json:"title,omitempty"`
	Text     string         `json:"text,omitempty"`
	Items    []string       `json:"items,omitempty"`
	Metrics  []Metric       `json:"metrics,omitempty"`
	Chart    *charts.Chart  `json:"chart,omitempty"`
	Table    *patient.Table `json:"table,omitempty"`
	Children []Block        `json:"children,omitempty"`
}

// Section is one tab.
type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Header string  `json:"header,omitempty"`
	Blocks []Block `json:"blocks"`
}

// Page is a complete view.
type Page struct {
	View            view.ID   `json:"view"`
	Title           string    `json:"title"`
	Subtitle        string    `json:"subtitle,omitempty"`
	Sections        []Section `json:"sections"`
	Footer          string    `json:"footer,omitempty"`
	Patients        []string  `json:"patients,omitempty"`
	SelectedPatient string    `json:"selected_patient,omitempty"`
}

// Section returns the section with id, if present.
func (p Page) Section(id string) (Section, bool) {
	for _, s := range p.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Count returns how many blocks of kind the section holds, expanders included.
func (s Section) Count(kind BlockKind) int {
	return count(s.Blocks, kind)
}

func count(blocks []Block, kind BlockKind) int {
	n := 0
	for _, b := range blocks {
		if b.Kind == kind {
			n++
		}
		n += count(b.Children, kind)
	}
	return n
}

// Notices returns the text of every notice block in the section.
func (s Section) Notices() []string {
	var out []string
	for _, b := range s.Blocks {
		if b.Kind == KindNotice {
			out = append(out, b.Text)
		}
	}
	return out
}

func box(title, text string) Block { return Block{Kind: KindBox, Title: title, Text: text} }

func heading(text string) Block { return Block{Kind: KindHeading, Text: text} }

func text(t string) Block { return Block{Kind: KindText, Text: t} }

func caption(t string) Block { return Block{Kind: KindCaption, Text: t} }

func notice(t string) Block { return Block{Kind: KindNotice, Text: t} }

func list(title string, items []string) Block {
	return Block{Kind: KindList, Title: title, Items: items}
}

func metrics(m ...Metric) Block { return Block{Kind: KindMetrics, Metrics: m} }

func expander(title string, children ...Block) Block {
	return Block{Kind: KindExpander, Title: title, Children: children}
}

func chart(c charts.Chart) Block { return Block{Kind: KindChart, Chart: &c} }

func table(title string, t patient.Table) Block {
	return Block{Kind: KindTable, Title: title, Table: &t}
}
