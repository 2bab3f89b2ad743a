// Package render draws a document layout as preview HTML, browser-printed
// PDF and PNG, or a PDF painted from declarative primitives.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/drfirst/go-rxpad/internal/document"
)

//go:embed templates/prescription.html.tmpl
var templates embed.FS

var pageTemplate = template.Must(template.ParseFS(templates, "templates/prescription.html.tmpl"))

type pageView struct {
	Preview   bool
	Watermark string
	Sections  []sectionView
}

type sectionView struct {
	Kind   document.SectionKind
	Badge  string
	Title  string
	Blocks []blockView
}

type blockView struct {
	Card  bool
	Nodes []nodeView
}

type nodeView struct {
	Kind      document.NodeKind
	Label     string
	Value     string
	FullWidth bool
}

// HTMLRenderer renders layouts with the embedded page template
type HTMLRenderer struct{}

// Preview writes the on-screen page: watermark when set and a fullscreen toggle
func (HTMLRenderer) Preview(w io.Writer, l document.Layout) error {
	return pageTemplate.Execute(w, newPageView(l, true))
}

// Print writes the same section markup without any on-screen controls
func (HTMLRenderer) Print(w io.Writer, l document.Layout) error {
	return pageTemplate.Execute(w, newPageView(l, false))
}

// PrintString renders Print into a string
func (r HTMLRenderer) PrintString(l document.Layout) (string, error) {
	var buf bytes.Buffer
	if err := r.Print(&buf, l); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newPageView(l document.Layout, preview bool) pageView {
	v := pageView{Preview: preview, Watermark: l.Watermark}
	for _, s := range l.Sections {
		v.Sections = append(v.Sections, sectionView{
			Kind:   s.Kind,
			Badge:  s.Badge,
			Title:  s.Title,
			Blocks: groupNodes(s.Nodes),
		})
	}
	return v
}

// groupNodes puts each medication's nodes in its own card block and every
// other run of nodes in a plain block
func groupNodes(nodes []document.Node) []blockView {
	var blocks []blockView
	for _, n := range nodes {
		card := n.Group > 0
		if len(blocks) == 0 || blocks[len(blocks)-1].Card != card || (card && n.Kind == document.NodeMedication) {
			blocks = append(blocks, blockView{Card: card})
		}
		last := &blocks[len(blocks)-1]
		last.Nodes = append(last.Nodes, toNodeView(n))
	}
	return blocks
}

func toNodeView(n document.Node) nodeView {
	value := n.Value
	if n.Kind == document.NodeBullet {
		value = n.Text()
	}
	return nodeView{Kind: n.Kind, Label: n.Label, Value: value, FullWidth: n.FullWidth}
}
