package chunk

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// Blank-line runs separate semantic units.
	blankLinePattern = regexp.MustCompile(`\r?\n(?:[ \t\r]*\n)+`)

	// Sentence ends: terminal punctuation, optional closing quote or
	// bracket, then whitespace. Line breaks also end a sentence.
	sentenceEndPattern = regexp.MustCompile(`[.!?]+["')\]]*[ \t]+|\n`)

	// Inline code span on a single line.
	inlineCodePattern = regexp.MustCompile("`[^`\n]+`")

	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t#]*$`)
)

// span is a half-open byte range [start, end).
type span struct {
	start, end int
}

func (s span) contains(pos int) bool {
	return pos > s.start && pos < s.end
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// unit is a blank-line delimited block of the source. Units tile the
// source: each one ends where the next begins.
type unit struct {
	span
	tokens int
	code   bool
}

// heading is a markdown heading outside fenced code.
type heading struct {
	offset int
	title  string
}

// layout holds the structural analysis of one source text.
type layout struct {
	text     string
	fenced   []span // fenced code blocks
	inline   []span // inline code spans outside fenced blocks
	headings []heading
}

func analyze(text string) *layout {
	l := &layout{text: text}
	l.fenced = findFencedBlocks(text)
	for _, m := range inlineCodePattern.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1]}
		if !l.inFence(s.start) {
			l.inline = append(l.inline, s)
		}
	}
	for _, m := range headerPattern.FindAllStringSubmatchIndex(text, -1) {
		if l.inFence(m[0]) {
			continue
		}
		l.headings = append(l.headings, heading{offset: m[0], title: strings.TrimSpace(text[m[4]:m[5]])})
	}
	return l
}

// findFencedBlocks scans line by line for ``` and ~~~ fences. An unclosed
// fence runs to the end of the text.
func findFencedBlocks(text string) []span {
	var (
		blocks []span
		open   = -1
		marker string
	)
	for pos := 0; pos < len(text); {
		end := strings.IndexByte(text[pos:], '\n')
		next := len(text)
		if end >= 0 {
			next = pos + end + 1
		}
		line := strings.TrimLeft(text[pos:next], " ")
		switch {
		case open < 0 && (strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")):
			open, marker = pos, line[:3]
		case open >= 0 && strings.HasPrefix(line, marker) && strings.TrimSpace(strings.TrimLeft(line, marker[:1])) == "":
			blocks = append(blocks, span{open, next})
			open = -1
		}
		pos = next
	}
	if open >= 0 {
		blocks = append(blocks, span{open, len(text)})
	}
	return blocks
}

// inFence reports whether pos lies inside a fenced block (boundaries excluded).
func (l *layout) inFence(pos int) bool {
	return insideAny(l.fenced, pos)
}

// protected reports whether a split at pos would cut a code span.
func (l *layout) protected(pos int) bool {
	return insideAny(l.fenced, pos) || insideAny(l.inline, pos)
}

// insideAny reports whether pos falls strictly inside one of the sorted spans.
func insideAny(spans []span, pos int) bool {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].end > pos })
	return i < len(spans) && spans[i].contains(pos)
}

func (l *layout) hasFence(s span) bool {
	for _, f := range l.fenced {
		if f.start >= s.end {
			break
		}
		if f.overlaps(s) {
			return true
		}
	}
	return false
}

// units splits the text on blank lines that are not inside code. The
// separator belongs to the unit before it.
func (l *layout) units(counter TokenCounter) []unit {
	var out []unit
	start := 0
	emit := func(end int) {
		s := span{start, end}
		out = append(out, unit{span: s, tokens: counter.Count(l.text[start:end]), code: l.hasFence(s)})
		start = end
	}
	for _, m := range blankLinePattern.FindAllStringIndex(l.text, -1) {
		if l.protected(m[1]) {
			continue
		}
		emit(m[1])
	}
	if start < len(l.text) {
		emit(len(l.text))
	}
	return out
}

// sentences splits s into contiguous sentence spans. Inside fenced code
// only line breaks count as boundaries.
func (l *layout) sentences(s span, counter TokenCounter) []unit {
	var out []unit
	start := s.start
	for _, m := range sentenceEndPattern.FindAllStringIndex(l.text[s.start:s.end], -1) {
		cut := s.start + m[1]
		if cut >= s.end {
			break
		}
		isNewline := l.text[s.start+m[1]-1] == '\n'
		if insideAny(l.inline, cut) || (!isNewline && l.inFence(cut)) {
			continue
		}
		out = append(out, unit{span: span{start, cut}, tokens: counter.Count(l.text[start:cut])})
		start = cut
	}
	out = append(out, unit{span: span{start, s.end}, tokens: counter.Count(l.text[start:s.end])})
	return out
}

// sectionTitle returns the last heading at or before pos, or the first
// heading inside [pos, end) when none precedes it.
func (l *layout) sectionTitle(pos, end int) string {
	i := sort.Search(len(l.headings), func(i int) bool { return l.headings[i].offset > pos })
	if i > 0 {
		return l.headings[i-1].title
	}
	if len(l.headings) > 0 && l.headings[0].offset < end {
		return l.headings[0].title
	}
	return ""
}
