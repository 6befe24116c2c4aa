// Package markdown renders answer text for the terminal. It parses with
// goldmark and lays the AST out as width-wrapped, lipgloss-styled lines.
package markdown

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jwulff/ragscope/internal/ui"
)

// Mark is a set of inline text attributes.
type Mark uint8

const (
	Bold Mark = 1 << iota
	Italic
	Code
	Link
	Strike
)

// Span is a run of text with uniform marks.
type Span struct {
	Text  string
	Marks Mark
}

// BlockKind classifies a Block.
type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	CodeBlock
	ListItem
	Quote
	Rule
)

// Block is one laid-out unit of the document.
type Block struct {
	Kind   BlockKind
	Level  int    // heading level, or list nesting depth (1-based)
	Marker string // list bullet or number, e.g. "- " or "2. "
	Spans  []Span
	Lines  []string // CodeBlock only
}

// Styles maps marks and block kinds to lipgloss styles.
type Styles struct {
	Heading lipgloss.Style
	Bold    lipgloss.Style
	Italic  lipgloss.Style
	Code    lipgloss.Style
	Link    lipgloss.Style
	Strike  lipgloss.Style
	Quote   lipgloss.Style
	Rule    lipgloss.Style
}

// DefaultStyles are the TUI's answer styles.
func DefaultStyles() Styles {
	return Styles{
		Heading: ui.MDHeadingStyle,
		Bold:    ui.MDBoldStyle,
		Italic:  ui.MDItalicStyle,
		Code:    ui.MDCodeStyle,
		Link:    ui.MDLinkStyle,
		Strike:  lipgloss.NewStyle().Strikethrough(true),
		Quote:   ui.MDQuoteStyle,
		Rule:    ui.DividerStyle,
	}
}

// PlainStyles render text unchanged.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Heading: s, Bold: s, Italic: s, Code: s, Link: s, Strike: s, Quote: s, Rule: s}
}

var md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

// Parse converts markdown source into blocks.
func Parse(src string) []Block {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	b := &builder{source: source}
	_ = ast.Walk(doc, b.walk)
	return b.blocks
}

type builder struct {
	source []byte
	blocks []Block
	cur    *Block

	bold, italic, link, strike int
	quoteDepth                 int
	lists                      []listState
}

type listState struct {
	ordered bool
	next    int
	marker  byte
}

func (b *builder) marks() Mark {
	var m Mark
	if b.bold > 0 {
		m |= Bold
	}
	if b.italic > 0 {
		m |= Italic
	}
	if b.link > 0 {
		m |= Link
	}
	if b.strike > 0 {
		m |= Strike
	}
	return m
}

func (b *builder) push(blk Block) {
	b.blocks = append(b.blocks, blk)
	b.cur = &b.blocks[len(b.blocks)-1]
}

// textBlock returns the block inline text should go to, opening a paragraph
// (or quote) if none is open.
func (b *builder) textBlock() *Block {
	if b.cur == nil {
		kind := Paragraph
		if b.quoteDepth > 0 {
			kind = Quote
		}
		b.push(Block{Kind: kind})
	}
	return b.cur
}

func (b *builder) appendText(s string, m Mark) {
	if s == "" {
		return
	}
	blk := b.textBlock()
	if n := len(blk.Spans); n > 0 && blk.Spans[n-1].Marks == m {
		blk.Spans[n-1].Text += s
		return
	}
	blk.Spans = append(blk.Spans, Span{Text: s, Marks: m})
}

func (b *builder) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		if entering {
			b.push(Block{Kind: Heading, Level: n.(*ast.Heading).Level})
		} else {
			b.cur = nil
		}
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			// The first paragraph of a list item continues the item's block.
			if b.cur != nil && b.cur.Kind == ListItem && len(b.cur.Spans) == 0 {
				return ast.WalkContinue, nil
			}
			b.cur = nil
			b.textBlock()
		} else {
			b.cur = nil
		}
	case ast.KindBlockquote:
		if entering {
			b.quoteDepth++
		} else {
			b.quoteDepth--
		}
		b.cur = nil
	case ast.KindList:
		if entering {
			l := n.(*ast.List)
			b.lists = append(b.lists, listState{ordered: l.IsOrdered(), next: l.Start, marker: l.Marker})
		} else {
			b.lists = b.lists[:len(b.lists)-1]
		}
		b.cur = nil
	case ast.KindListItem:
		if entering {
			ls := &b.lists[len(b.lists)-1]
			marker := "- "
			if ls.ordered {
				marker = strconv.Itoa(ls.next) + string(ls.marker) + " "
				ls.next++
			}
			b.push(Block{Kind: ListItem, Level: len(b.lists), Marker: marker})
		} else {
			b.cur = nil
		}
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			b.push(Block{Kind: CodeBlock, Lines: b.codeLines(n)})
			b.cur = nil
		}
		return ast.WalkSkipChildren, nil
	case ast.KindThematicBreak:
		if entering {
			b.push(Block{Kind: Rule})
			b.cur = nil
		}
	case ast.KindHTMLBlock, ast.KindRawHTML:
		return ast.WalkSkipChildren, nil
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			b.appendText(string(t.Segment.Value(b.source)), b.marks())
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.appendText(" ", b.marks())
			}
		}
	case ast.KindString:
		if entering {
			b.appendText(string(n.(*ast.String).Value), b.marks())
		}
	case ast.KindEmphasis:
		delta := -1
		if entering {
			delta = 1
		}
		if n.(*ast.Emphasis).Level == 2 {
			b.bold += delta
		} else {
			b.italic += delta
		}
	case extast.KindStrikethrough:
		if entering {
			b.strike++
		} else {
			b.strike--
		}
	case ast.KindLink:
		if entering {
			b.link++
		} else {
			b.link--
		}
	case ast.KindAutoLink:
		if entering {
			al := n.(*ast.AutoLink)
			b.appendText(string(al.URL(b.source)), b.marks()|Link)
		}
		return ast.WalkSkipChildren, nil
	case ast.KindCodeSpan:
		if entering {
			var sb strings.Builder
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					sb.Write(t.Segment.Value(b.source))
				}
			}
			b.appendText(sb.String(), b.marks()|Code)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (b *builder) codeLines(n ast.Node) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(b.source)), "\r\n"))
	}
	return out
}

// Render lays out src in at most width columns. Blocks are separated by a
// blank line; list items of the same list are not.
func Render(src string, width int, st Styles) []string {
	if width < 10 {
		width = 10
	}
	blocks := Parse(src)

	var out []string
	for i, blk := range blocks {
		if i > 0 && !(blk.Kind == ListItem && blocks[i-1].Kind == ListItem) {
			out = append(out, "")
		}
		out = append(out, renderBlock(blk, width, st)...)
	}
	return out
}

func renderBlock(blk Block, width int, st Styles) []string {
	switch blk.Kind {
	case Heading:
		lines := wrapWords(splitWords(blk.Spans), width)
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = st.Heading.Render(plainText(l))
		}
		return out
	case CodeBlock:
		out := make([]string, 0, len(blk.Lines))
		for _, l := range blk.Lines {
			out = append(out, st.Code.Render("  "+truncate(l, width-2)))
		}
		return out
	case Rule:
		return []string{st.Rule.Render(strings.Repeat("─", width))}
	case ListItem:
		indent := strings.Repeat("  ", blk.Level-1)
		first := indent + blk.Marker
		rest := strings.Repeat(" ", lipgloss.Width(first))
		return prefixLines(blk.Spans, width, first, rest, st)
	case Quote:
		prefix := st.Quote.Render("│ ")
		return prefixLines(blk.Spans, width, prefix, prefix, st)
	default:
		return prefixLines(blk.Spans, width, "", "", st)
	}
}

func prefixLines(spans []Span, width int, first, rest string, st Styles) []string {
	avail := width - lipgloss.Width(first)
	if avail < 1 {
		avail = 1
	}
	lines := wrapWords(splitWords(spans), avail)
	out := make([]string, len(lines))
	for i, l := range lines {
		p := rest
		if i == 0 {
			p = first
		}
		out[i] = p + styled(l, st)
	}
	return out
}

// splitWords breaks spans at whitespace. A word keeps the marked fragments it
// is made of, so "**bold**," stays one word.
func splitWords(spans []Span) [][]Span {
	var (
		ws  [][]Span
		cur []Span
	)
	for _, sp := range spans {
		var frag strings.Builder
		flush := func() {
			if frag.Len() > 0 {
				cur = append(cur, Span{Text: frag.String(), Marks: sp.Marks})
				frag.Reset()
			}
		}
		for _, r := range sp.Text {
			if !unicode.IsSpace(r) {
				frag.WriteRune(r)
				continue
			}
			flush()
			if len(cur) > 0 {
				ws = append(ws, cur)
				cur = nil
			}
		}
		flush()
	}
	if len(cur) > 0 {
		ws = append(ws, cur)
	}
	return ws
}

func wordWidth(w []Span) int {
	n := 0
	for _, f := range w {
		n += lipgloss.Width(f.Text)
	}
	return n
}

// wrapWords greedily packs words into lines of at most width columns. Words
// wider than width get a line of their own.
func wrapWords(ws [][]Span, width int) [][][]Span {
	var (
		lines [][][]Span
		cur   [][]Span
		used  int
	)
	for _, w := range ws {
		ww := wordWidth(w)
		switch {
		case len(cur) == 0:
			cur, used = [][]Span{w}, ww
		case used+1+ww <= width:
			cur = append(cur, w)
			used += 1 + ww
		default:
			lines = append(lines, cur)
			cur, used = [][]Span{w}, ww
		}
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	if len(lines) == 0 {
		lines = append(lines, nil)
	}
	return lines
}

func plainText(line [][]Span) string {
	parts := make([]string, len(line))
	for i, w := range line {
		var sb strings.Builder
		for _, f := range w {
			sb.WriteString(f.Text)
		}
		parts[i] = sb.String()
	}
	return strings.Join(parts, " ")
}

func styled(line [][]Span, st Styles) string {
	parts := make([]string, len(line))
	for i, w := range line {
		var sb strings.Builder
		for _, f := range w {
			sb.WriteString(styleFor(f.Marks, st).Render(f.Text))
		}
		parts[i] = sb.String()
	}
	return strings.Join(parts, " ")
}

func styleFor(m Mark, st Styles) lipgloss.Style {
	switch {
	case m&Code != 0:
		return st.Code
	case m&Link != 0:
		return st.Link
	case m&Bold != 0 && m&Italic != 0:
		return st.Bold.Inherit(st.Italic)
	case m&Bold != 0:
		return st.Bold
	case m&Italic != 0:
		return st.Italic
	case m&Strike != 0:
		return st.Strike
	}
	return lipgloss.NewStyle()
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
