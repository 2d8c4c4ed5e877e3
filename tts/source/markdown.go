// Package source turns markdown documents into synthesis chunks.
//
// Every block becomes one or more sentence chunks whose parameters come from
// a per-block Profile, so consecutive prose shares a signature and batches
// well while headings and quotes get their own delivery.
package source

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"

	"github.com/dgnsrekt/batchtts/tts"
)

// Boundary types written to Chunk.Boundary.
const (
	BoundarySentence  = "sentence"
	BoundaryParagraph = "paragraph"
	BoundaryHeading   = "heading"
	BoundaryListItem  = "list_item"
	BoundaryQuote     = "quote"
)

// Profile maps block kinds to generation parameters.
type Profile struct {
	Paragraph tts.Parameters
	Heading   tts.Parameters
	ListItem  tts.Parameters
	Quote     tts.Parameters
}

// DefaultProfile gives headings more emphasis and quotes a calmer read.
func DefaultProfile() Profile {
	heading := tts.DefaultParameters()
	heading.Exaggeration = 0.7
	heading.CFGWeight = 0.4

	quote := tts.DefaultParameters()
	quote.Exaggeration = 0.35
	quote.Temperature = 0.7

	return Profile{
		Paragraph: tts.DefaultParameters(),
		Heading:   heading,
		ListItem:  tts.DefaultParameters(),
		Quote:     quote,
	}
}

func (p Profile) params(kind string) tts.Parameters {
	switch kind {
	case BoundaryHeading:
		return p.Heading
	case BoundaryListItem:
		return p.ListItem
	case BoundaryQuote:
		return p.Quote
	default:
		return p.Paragraph
	}
}

// Options controls chunk extraction.
type Options struct {
	Profile Profile
	// IncludeCode reads code blocks aloud instead of skipping them.
	IncludeCode bool
	// MaxLength splits sentences longer than this many runes. Zero disables.
	MaxLength int
	// MinLength drops fragments shorter than this many runes.
	MinLength int
}

// DefaultOptions returns the options the CLI uses for .md manifests.
func DefaultOptions() Options {
	return Options{
		Profile:   DefaultProfile(),
		MaxLength: 300,
		MinLength: 2,
	}
}

// Markdown parses src and returns its speakable text as indexed chunks.
func Markdown(src []byte, opts Options) []tts.Chunk {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	w := &walker{src: src, opts: opts}
	_ = ast.Walk(doc, w.visit)

	log.Debug("markdown chunked", "bytes", len(src), "blocks", w.blocks, "chunks", len(w.chunks))
	return w.chunks
}

type walker struct {
	src    []byte
	opts   Options
	chunks []tts.Chunk
	blocks int
}

func (w *walker) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch n := n.(type) {
	case *ast.Heading:
		w.emit(w.inline(n), BoundaryHeading)
		return ast.WalkSkipChildren, nil

	case *ast.Paragraph, *ast.TextBlock:
		w.emit(w.inline(n), blockKind(n))
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if w.opts.IncludeCode {
			w.emit(w.lines(n), BoundaryParagraph)
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

// blockKind classifies a paragraph by its nearest list item or blockquote.
func blockKind(n ast.Node) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.(type) {
		case *ast.ListItem:
			return BoundaryListItem
		case *ast.Blockquote:
			return BoundaryQuote
		}
	}
	return BoundaryParagraph
}

// inline collects the speakable text under n: link text without the URL,
// image alt text, code spans verbatim and no raw HTML.
func (w *walker) inline(n ast.Node) string {
	var b strings.Builder
	var collect func(ast.Node)
	collect = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(w.src))
				if c.SoftLineBreak() || c.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(c.Value)
			case *ast.AutoLink, *ast.RawHTML:
			default:
				collect(c)
			}
		}
	}
	collect(n)
	return b.String()
}

func (w *walker) lines(n ast.Node) string {
	var b strings.Builder
	l := n.Lines()
	for i := 0; i < l.Len(); i++ {
		seg := l.At(i)
		b.Write(seg.Value(w.src))
	}
	return b.String()
}

// emit splits block text into sentences and appends one chunk per sentence.
// The last sentence carries the block's boundary, earlier ones
// BoundarySentence.
func (w *walker) emit(raw, kind string) {
	s := normalize(raw)
	if s == "" {
		return
	}
	w.blocks++

	var parts []string
	for _, sentence := range splitSentences(s) {
		parts = append(parts, splitLong(sentence, w.opts.MaxLength)...)
	}

	params := w.opts.Profile.params(kind).Map()
	var kept []string
	for _, p := range parts {
		if len([]rune(p)) >= w.opts.MinLength {
			kept = append(kept, p)
		}
	}
	for i, p := range kept {
		boundary := BoundarySentence
		if kind == BoundaryHeading || i == len(kept)-1 {
			boundary = kind
		}
		chunk := tts.Chunk{Index: len(w.chunks), Text: p, Boundary: boundary, Params: make(map[string]float64, len(params))}
		for k, v := range params {
			chunk.Params[k] = v
		}
		w.chunks = append(w.chunks, chunk)
	}
}

// normalize composes Unicode to NFC and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
