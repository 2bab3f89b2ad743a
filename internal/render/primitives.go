package render

import (
	"strings"

	"github.com/drfirst/go-rxpad/internal/document"
)

// PrimitiveKind identifies a primitive node
type PrimitiveKind string

const (
	KindBox       PrimitiveKind = "box"
	KindText      PrimitiveKind = "text"
	KindWatermark PrimitiveKind = "watermark"
)

// Color is an RGB triple
type Color struct{ R, G, B int }

var (
	colorInk       = Color{17, 24, 39}
	colorBody      = Color{75, 85, 99}
	colorMuted     = Color{107, 114, 128}
	colorFaint     = Color{156, 163, 175}
	colorWhite     = Color{255, 255, 255}
	colorRxTint    = Color{240, 249, 255}
	colorRxBorder  = Color{186, 230, 253}
	colorRxBadge   = Color{8, 145, 178}
	colorWatermark = Color{255, 0, 0}
)

// Style is the complete visual description of a node. Nothing is inherited
// from the parent; every node carries all of it.
type Style struct {
	FontSize     float64
	Bold         bool
	Italic       bool
	Color        Color
	Background   *Color
	BorderColor  *Color
	BorderTop    float64
	BorderBottom float64
	// Width is the fraction of the parent's inner width; 0 means all of it
	Width        float64
	LineHeight   float64
	MarginTop    float64
	MarginBottom float64
	Padding      float64
	// Row lays children out left to right, wrapping on overflow
	Row     bool
	Inline  bool
	Opacity float64
	Rotate  float64
}

// Span is a run of text within a text node
type Span struct {
	Text string
	Bold bool
}

// Primitive is a box or text node of the declarative tree
type Primitive struct {
	Kind     PrimitiveKind
	Style    Style
	Spans    []Span
	Children []Primitive
}

// Text concatenates the node's spans
func (p Primitive) Text() string {
	var b strings.Builder
	for _, s := range p.Spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Page is the root of the tree, A4 with uniform padding
type Page struct {
	Size     string
	Padding  float64
	Style    Style
	Children []Primitive
}

// Lines returns the text nodes in paint order
func (p Page) Lines() []string {
	var lines []string
	var walk func(nodes []Primitive)
	walk = func(nodes []Primitive) {
		for _, n := range nodes {
			if n.Kind != KindBox {
				lines = append(lines, n.Text())
			}
			walk(n.Children)
		}
	}
	walk(p.Children)
	return lines
}

func body(size float64, c Color) Style {
	return Style{FontSize: size, Color: c, LineHeight: 1.6, Opacity: 1}
}

func box(s Style, children ...Primitive) Primitive {
	s.Opacity = 1
	return Primitive{Kind: KindBox, Style: s, Children: children}
}

func text(s Style, spans ...Span) Primitive {
	return Primitive{Kind: KindText, Style: s, Spans: spans}
}

// BuildPrimitives converts a layout into the primitive tree
func BuildPrimitives(l document.Layout) Page {
	page := Page{Size: "A4", Padding: 40, Style: Style{FontSize: 11, Color: colorInk, Background: &colorWhite, Opacity: 1}}

	if l.Watermark != "" {
		page.Children = append(page.Children, Primitive{
			Kind:  KindWatermark,
			Style: Style{FontSize: 100, Bold: true, Color: colorWatermark, Opacity: 0.1, Rotate: -45, LineHeight: 1},
			Spans: []Span{{Text: l.Watermark, Bold: true}},
		})
	}

	for _, s := range l.Sections {
		page.Children = append(page.Children, sectionPrimitive(s))
	}
	return page
}

func sectionPrimitive(s document.Section) Primitive {
	switch s.Kind {
	case document.SectionHeader:
		sec := box(Style{MarginBottom: 20, Padding: 0, BorderBottom: 2, BorderColor: &colorBody})
		if s.Title != "" {
			st := body(20, colorInk)
			st.Bold, st.LineHeight, st.MarginBottom = true, 1.2, 10
			sec.Children = append(sec.Children, text(st, Span{Text: s.Title, Bold: true}))
		}
		for _, n := range s.Nodes {
			sec.Children = append(sec.Children, nodePrimitive(n))
		}
		return sec

	case document.SectionPatient:
		grid := box(Style{Row: true})
		for _, n := range s.Nodes {
			p := nodePrimitive(n)
			p.Style.Width = 0.48
			if n.FullWidth {
				p.Style.Width = 1
			}
			grid.Children = append(grid.Children, p)
		}
		return box(Style{MarginBottom: 15}, titlePrimitive(s.Title), grid)

	case document.SectionPrescription:
		heading := box(Style{Row: true, MarginBottom: 12})
		badge := body(10, colorWhite)
		badge.Bold, badge.Background, badge.Padding, badge.Inline, badge.LineHeight = true, &colorRxBadge, 4, true, 1.2
		heading.Children = append(heading.Children, text(badge, Span{Text: s.Badge, Bold: true}))
		title := titlePrimitive(s.Title)
		title.Style.Inline = true
		heading.Children = append(heading.Children, title)

		sec := box(Style{Background: &colorRxTint, Padding: 15, MarginBottom: 15}, heading)
		var card *Primitive
		for _, n := range s.Nodes {
			if n.Kind == document.NodeMedication {
				sec.Children = append(sec.Children, box(Style{Background: &colorWhite, BorderColor: &colorRxBorder, BorderTop: 1, BorderBottom: 1, Padding: 10, MarginBottom: 10}))
				card = &sec.Children[len(sec.Children)-1]
			}
			if card == nil {
				sec.Children = append(sec.Children, nodePrimitive(n))
				continue
			}
			card.Children = append(card.Children, nodePrimitive(n))
		}
		return sec

	case document.SectionFooter:
		sec := box(Style{MarginTop: 20, Padding: 0, BorderTop: 2, BorderColor: &colorBody})
		for _, n := range s.Nodes {
			sec.Children = append(sec.Children, nodePrimitive(n))
		}
		return sec

	default:
		sec := box(Style{MarginBottom: 15}, titlePrimitive(s.Title))
		for _, n := range s.Nodes {
			sec.Children = append(sec.Children, nodePrimitive(n))
		}
		return sec
	}
}

func titlePrimitive(title string) Primitive {
	st := body(13, colorInk)
	st.Bold, st.LineHeight, st.MarginBottom = true, 1.2, 8
	return text(st, Span{Text: title, Bold: true})
}

func nodePrimitive(n document.Node) Primitive {
	st := body(10, colorBody)
	switch n.Kind {
	case document.NodeDoctorName:
		st.Color = colorInk
	case document.NodeMedication:
		st.FontSize, st.Bold, st.Color, st.MarginBottom = 11, true, colorInk, 4
	case document.NodeDosage:
		st.FontSize, st.MarginBottom = 9, 2
	case document.NodeInstructions:
		st.FontSize, st.Italic, st.Color = 9, true, colorMuted
	case document.NodeBullet:
		st.LineHeight = 1.8
	case document.NodeSignatureLabel:
		st.Bold, st.Color, st.MarginTop, st.MarginBottom = true, colorInk, 30, 10
	case document.NodeSignatureName:
		st.Italic, st.Color, st.MarginTop = true, colorMuted, 8
	case document.NodeDate:
		st.FontSize, st.Color, st.MarginTop = 9, colorFaint, 15
	}

	if n.Kind == document.NodeBullet {
		return text(st, Span{Text: n.Text()})
	}
	if n.Label != "" {
		return text(st, Span{Text: n.Label + ": ", Bold: true}, Span{Text: n.Value})
	}
	return text(st, Span{Text: n.Value, Bold: st.Bold})
}
