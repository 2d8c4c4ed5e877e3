package source

import (
	"strings"
	"unicode"
)

// abbreviations never end a sentence when followed by a period. Title forms
// stay attached to the following name even before a capital letter.
var (
	abbreviations = makeSet(
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st",
		"ph.d", "m.d", "b.a", "m.a", "b.s",
		"inc", "ltd", "co", "corp", "llc",
		"i.e", "e.g", "etc", "vs", "cf", "al",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"ave", "blvd", "rd", "ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi",
		"hr", "hrs", "min", "mins", "sec", "secs", "no", "vol", "pp",
		"u.s", "u.k", "u.n", "e.u",
	)
	titles = makeSet("mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st")
)

func makeSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// splitSentences breaks normalized text at sentence-ending punctuation.
func splitSentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Swallow runs like "?!" or "..." and closing quotes or brackets.
		end := i
		for end+1 < len(runes) && strings.ContainsRune(".!?\"')]”’", runes[end+1]) {
			end++
		}
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}
		if r == '.' && end == i && !endsSentence(runes, i) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : end+1])); s != "" {
			out = append(out, s)
		}
		start = end + 1
		i = end
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// endsSentence decides whether the period at pos closes a sentence.
func endsSentence(runes []rune, pos int) bool {
	wstart := pos
	for wstart > 0 && !unicode.IsSpace(runes[wstart-1]) {
		wstart--
	}
	word := strings.ToLower(strings.TrimLeft(string(runes[wstart:pos]), "(\"'“‘"))
	if word == "" {
		return true
	}

	next := pos + 1
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	capitalNext := next < len(runes) && unicode.IsUpper(runes[next])

	if _, ok := titles[word]; ok {
		return false
	}
	// Initials such as "J." in "J. R. Tolkien".
	if len([]rune(word)) == 1 && unicode.IsLetter([]rune(word)[0]) {
		return false
	}
	if _, ok := abbreviations[word]; ok {
		return capitalNext
	}
	return true
}

// splitLong breaks a sentence longer than limit runes at the last comma or
// space before the limit.
func splitLong(s string, limit int) []string {
	if limit <= 0 {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := -1
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == ',' || runes[i-1] == ';' {
				cut = i
				break
			}
		}
		if cut < 0 {
			for i := limit; i > 0; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = limit
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			out = append(out, part)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
