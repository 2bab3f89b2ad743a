package render

import (
	"embed"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// ptPerPx converts CSS pixels to PDF points
const ptPerPx = 0.75

// fontFamily is the UTF-8 family registered on every primitive PDF
const fontFamily = "DejaVu"

//go:embed fonts/*.ttf
var fonts embed.FS

var fontFiles = map[string]string{
	"":   "fonts/DejaVuSansCondensed.ttf",
	"B":  "fonts/DejaVuSansCondensed-Bold.ttf",
	"I":  "fonts/DejaVuSansCondensed-Oblique.ttf",
	"BI": "fonts/DejaVuSansCondensed-BoldOblique.ttf",
}

// painter draws a primitive page onto an fpdf document
type painter struct {
	pdf    *fpdf.Fpdf
	loaded map[string]bool
	pageH  float64
	margin float64
}

// printable replaces runes outside the Basic Multilingual Plane, which the
// UTF-8 width tables do not cover
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return '?'
		}
		return r
	}, s)
}

// WritePrimitivePDF paints page as an A4 PDF into w
func WritePrimitivePDF(w io.Writer, page Page) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetTitle("Prescription", true)
	pdf.SetCreator("rxpad", true)

	margin := page.Padding * ptPerPx
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetCellMargin(0)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	p := &painter{
		pdf:    pdf,
		loaded: map[string]bool{},
		pageH:  pageH,
		margin: margin,
	}

	y := margin
	for _, n := range page.Children {
		if n.Kind == KindWatermark {
			p.watermark(n, pageW, pageH)
			continue
		}
		y = p.node(n, margin, y, pageW-2*margin)
	}

	if pdf.Err() {
		return fmt.Errorf("paint pdf: %w", pdf.Error())
	}
	return pdf.Output(w)
}

func (p *painter) setFont(st Style, bold bool) {
	style := ""
	if bold || st.Bold {
		style += "B"
	}
	if st.Italic {
		style += "I"
	}
	if !p.loaded[style] {
		b, err := fonts.ReadFile(fontFiles[style])
		if err != nil {
			p.pdf.SetError(fmt.Errorf("load font %q: %w", style, err))
			return
		}
		p.pdf.AddUTF8FontFromBytes(fontFamily, style, b)
		p.loaded[style] = true
	}
	p.pdf.SetFont(fontFamily, style, st.FontSize)
	p.pdf.SetTextColor(st.Color.R, st.Color.G, st.Color.B)
}

func lineHeight(st Style) float64 {
	lh := st.LineHeight
	if lh == 0 {
		lh = 1.2
	}
	return st.FontSize * lh
}

// measure returns the height n occupies at width w, margins included
func (p *painter) measure(n Primitive, w float64) float64 {
	st := n.Style
	inner := w - 2*st.Padding*ptPerPx
	var h float64
	switch n.Kind {
	case KindText:
		h = float64(len(p.wrap(n, inner))) * lineHeight(st)
	case KindBox:
		if st.Row {
			h = p.measureRow(n.Children, inner)
		} else {
			for _, c := range n.Children {
				h += p.measure(c, childWidth(c, inner))
			}
		}
	}
	return h + 2*st.Padding*ptPerPx + st.BorderTop + st.BorderBottom + (st.MarginTop+st.MarginBottom)*ptPerPx
}

func (p *painter) measureRow(children []Primitive, w float64) float64 {
	var total, rowH, x float64
	for _, c := range children {
		cw := childWidth(c, w)
		if c.Style.Inline {
			cw = p.inlineWidth(c)
		}
		if x > 0 && x+cw > w+0.5 {
			total += rowH
			x, rowH = 0, 0
		}
		if h := p.measure(c, cw); h > rowH {
			rowH = h
		}
		x += cw + gutter(c, w)
	}
	return total + rowH
}

func childWidth(c Primitive, w float64) float64 {
	if c.Style.Width > 0 {
		return w * c.Style.Width
	}
	return w
}

func gutter(c Primitive, w float64) float64 {
	if c.Style.Inline {
		return 8 * ptPerPx
	}
	if c.Style.Width > 0 && c.Style.Width < 1 {
		return w * (1 - 2*c.Style.Width)
	}
	return 0
}

func (p *painter) inlineWidth(c Primitive) float64 {
	p.setFont(c.Style, false)
	return p.pdf.GetStringWidth(printable(c.Text())) + 2*c.Style.Padding*ptPerPx + 1
}

// wrap splits a text node into printed lines; the label of a labelled node
// occupies the start of the first line
func (p *painter) wrap(n Primitive, w float64) []string {
	if p.pdf.Err() {
		return []string{""}
	}
	if isLabelled(n) {
		p.setFont(n.Style, true)
		w -= p.pdf.GetStringWidth(printable(n.Spans[0].Text))
		p.setFont(n.Style, false)
		if lines := p.pdf.SplitText(printable(n.Spans[1].Text), w); len(lines) > 0 {
			return lines
		}
		return []string{""}
	}
	p.setFont(n.Style, false)
	lines := p.pdf.SplitText(printable(n.Text()), w)
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// node paints n at (x, y) with width w and returns the y below it
func (p *painter) node(n Primitive, x, y, w float64) float64 {
	st := n.Style
	h := p.measure(n, w)
	if y+h > p.pageH-p.margin && y > p.margin+1 {
		p.pdf.AddPage()
		y = p.margin
	}

	top := y + st.MarginTop*ptPerPx
	boxH := h - (st.MarginTop+st.MarginBottom)*ptPerPx
	p.decorate(st, x, top, w, boxH)

	pad := st.Padding * ptPerPx
	cx, cy, cw := x+pad, top+pad+st.BorderTop, w-2*pad

	switch n.Kind {
	case KindText:
		p.text(n, cx, cy, cw)
	case KindBox:
		if st.Row {
			p.row(n.Children, cx, cy, cw)
		} else {
			for _, c := range n.Children {
				cy = p.node(c, cx, cy, childWidth(c, cw))
			}
		}
	}
	return top + boxH + st.MarginBottom*ptPerPx
}

func (p *painter) decorate(st Style, x, y, w, h float64) {
	if st.Background != nil {
		p.pdf.SetFillColor(st.Background.R, st.Background.G, st.Background.B)
		p.pdf.Rect(x, y, w, h, "F")
	}
	if st.BorderColor == nil {
		return
	}
	p.pdf.SetDrawColor(st.BorderColor.R, st.BorderColor.G, st.BorderColor.B)
	if st.BorderTop > 0 {
		p.pdf.SetLineWidth(st.BorderTop)
		p.pdf.Line(x, y, x+w, y)
	}
	if st.BorderBottom > 0 {
		p.pdf.SetLineWidth(st.BorderBottom)
		p.pdf.Line(x, y+h, x+w, y+h)
	}
	if st.BorderTop > 0 && st.BorderBottom > 0 {
		p.pdf.SetLineWidth(st.BorderTop)
		p.pdf.Line(x, y, x, y+h)
		p.pdf.Line(x+w, y, x+w, y+h)
	}
}

func (p *painter) row(children []Primitive, x, y, w float64) {
	var cx, rowH float64
	for _, c := range children {
		cw := childWidth(c, w)
		if c.Style.Inline {
			cw = p.inlineWidth(c)
		}
		if cx > 0 && cx+cw > w+0.5 {
			y += rowH
			cx, rowH = 0, 0
		}
		bottom := p.node(c, x+cx, y, cw)
		if bottom-y > rowH {
			rowH = bottom - y
		}
		cx += cw + gutter(c, w)
	}
}

func isLabelled(n Primitive) bool {
	return len(n.Spans) == 2 && n.Spans[0].Bold && !n.Spans[1].Bold
}

// text paints a text node; a bold first span is drawn as a label
func (p *painter) text(n Primitive, x, y, w float64) {
	st := n.Style
	lh := lineHeight(st)
	if isLabelled(n) {
		p.setFont(st, true)
		label := printable(n.Spans[0].Text)
		labelW := p.pdf.GetStringWidth(label)
		p.pdf.SetXY(x, y)
		p.pdf.CellFormat(labelW, lh, label, "", 0, "L", false, 0, "")

		p.setFont(st, false)
		p.pdf.SetXY(x+labelW, y)
		p.pdf.MultiCell(w-labelW, lh, printable(n.Spans[1].Text), "", "L", false)
		return
	}

	p.setFont(st, false)
	p.pdf.SetXY(x, y)
	p.pdf.MultiCell(w, lh, printable(n.Text()), "", "L", false)
}

func (p *painter) watermark(n Primitive, pageW, pageH float64) {
	st := n.Style
	p.setFont(st, true)
	label := printable(n.Text())
	tw := p.pdf.GetStringWidth(label)
	cx, cy := pageW/2, pageH/2

	p.pdf.TransformBegin()
	p.pdf.SetAlpha(st.Opacity, "Normal")
	p.pdf.TransformRotate(-st.Rotate, cx, cy)
	p.pdf.Text(cx-tw/2, cy+st.FontSize/3, label)
	p.pdf.SetAlpha(1, "Normal")
	p.pdf.TransformEnd()
}
