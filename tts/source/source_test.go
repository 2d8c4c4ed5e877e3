package source

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/batchtts/tts"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple",
			input: "Hello world. How are you? I'm fine!",
			want:  []string{"Hello world.", "How are you?", "I'm fine!"},
		},
		{
			name:  "title stays with name",
			input: "Dr. Smith arrived. He sat down.",
			want:  []string{"Dr. Smith arrived.", "He sat down."},
		},
		{
			name:  "abbreviation mid sentence",
			input: "Bring tools, e.g. a hammer. Then start.",
			want:  []string{"Bring tools, e.g. a hammer.", "Then start."},
		},
		{
			name:  "decimal",
			input: "Pi is 3.14 roughly. Yes.",
			want:  []string{"Pi is 3.14 roughly.", "Yes."},
		},
		{
			name:  "initials",
			input: "J. R. Tolkien wrote it.",
			want:  []string{"J. R. Tolkien wrote it."},
		},
		{
			name:  "closing quote",
			input: `"Stop." She turned.`,
			want:  []string{`"Stop."`, "She turned."},
		},
		{
			name:  "combined punctuation",
			input: "Really?! Yes.",
			want:  []string{"Really?!", "Yes."},
		},
		{
			name:  "no terminator",
			input: "a trailing fragment",
			want:  []string{"a trailing fragment"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitSentences(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitSentences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitLong(t *testing.T) {
	s := "one two three, four five six seven eight nine ten"
	parts := splitLong(s, 20)
	if len(parts) < 2 {
		t.Fatalf("expected a split, got %q", parts)
	}
	if parts[0] != "one two three," {
		t.Errorf("first part = %q, want split at the comma", parts[0])
	}
	for _, p := range parts {
		if len([]rune(p)) > 20 {
			t.Errorf("part %q exceeds limit", p)
		}
	}
	if got := strings.Join(parts, " "); got != s {
		t.Errorf("rejoined = %q, want %q", got, s)
	}

	if got := splitLong(s, 0); len(got) != 1 {
		t.Errorf("limit 0 should not split, got %q", got)
	}
}

const doc = "# Chapter One\n\n" +
	"It was late. Dr. Reed checked the [map](https://example.com) again.\n\n" +
	"- pack the `rope`\n" +
	"- find water\n\n" +
	"> Never go alone.\n\n" +
	"```go\nfmt.Println(\"skipped\")\n```\n\n" +
	"<div>html is dropped</div>\n\n" +
	"Done.\n"

func TestMarkdown(t *testing.T) {
	chunks := Markdown([]byte(doc), DefaultOptions())

	want := []struct {
		text     string
		boundary string
	}{
		{"Chapter One", BoundaryHeading},
		{"It was late.", BoundarySentence},
		{"Dr. Reed checked the map again.", BoundaryParagraph},
		{"pack the rope", BoundaryListItem},
		{"find water", BoundaryListItem},
		{"Never go alone.", BoundaryQuote},
		{"Done.", BoundaryParagraph},
	}
	if len(chunks) != len(want) {
		for _, c := range chunks {
			t.Logf("%d %q %s", c.Index, c.Text, c.Boundary)
		}
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		c := chunks[i]
		if c.Index != i || c.Text != w.text || c.Boundary != w.boundary {
			t.Errorf("chunk %d = {%d %q %s}, want {%d %q %s}", i, c.Index, c.Text, c.Boundary, i, w.text, w.boundary)
		}
		if !c.HasParameters() {
			t.Errorf("chunk %d has an incomplete parameter set", i)
		}
	}

	profile := DefaultProfile()
	for _, tt := range []struct {
		idx  int
		want tts.Parameters
	}{
		{0, profile.Heading},
		{1, profile.Paragraph},
		{3, profile.ListItem},
		{5, profile.Quote},
	} {
		if got, _ := chunks[tt.idx].Parameters(); got != tt.want {
			t.Errorf("chunk %d params = %v, want %v", tt.idx, got, tt.want)
		}
	}
}

func TestMarkdown_IncludeCode(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeCode = true
	chunks := Markdown([]byte("```\nrun it\n```\n"), opts)
	if len(chunks) != 1 || chunks[0].Text != "run it" {
		t.Errorf("chunks = %+v, want the code text", chunks)
	}
}

func TestMarkdown_Normalizes(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	chunks := Markdown([]byte("Cafe\u0301   au\nlait.\n"), DefaultOptions())
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if got, want := chunks[0].Text, "Caf\u00e9 au lait."; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestMarkdown_Empty(t *testing.T) {
	for _, src := range []string{"", "```\ncode only\n```\n", "<p>html</p>\n"} {
		if got := Markdown([]byte(src), DefaultOptions()); len(got) != 0 {
			t.Errorf("Markdown(%q) = %+v, want no chunks", src, got)
		}
	}
}

func TestMarkdown_ParamsNotShared(t *testing.T) {
	chunks := Markdown([]byte("One. Two.\n"), DefaultOptions())
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	chunks[0].Params[tts.ParamExaggeration] = 2
	if chunks[1].Params[tts.ParamExaggeration] == 2 {
		t.Error("chunks share a parameter map")
	}
}
