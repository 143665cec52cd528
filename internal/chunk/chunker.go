// Package chunk splits document text into token-bounded chunks.
//
// The chunker is deterministic: the same text and options always yield the
// same chunks. Splits happen on blank lines, never inside fenced or inline
// code, and fall back to sentence boundaries for oversized blocks.
package chunk

import (
	"log/slog"
	"strings"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// Chunker splits text under the budgets in Options.
type Chunker struct {
	opts    Options
	counter TokenCounter
	logger  *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithCounter sets the token counter. The default is CharRatioCounter.
func WithCounter(c TokenCounter) Option {
	return func(ch *Chunker) {
		if c != nil {
			ch.counter = c
		}
	}
}

// WithLogger sets the logger used for capacity warnings.
func WithLogger(l *slog.Logger) Option {
	return func(ch *Chunker) {
		if l != nil {
			ch.logger = l
		}
	}
}

// New creates a Chunker. Zero TargetTokens or MaxTokens take their
// defaults; zero MinTokens or OverlapTokens mean none.
func New(opts Options, options ...Option) *Chunker {
	c := &Chunker{
		opts:    opts.withDefaults(),
		counter: CharRatioCounter{},
		logger:  slog.Default(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Options returns the effective budgets.
func (c *Chunker) Options() Options { return c.opts }

// Counter returns the token counter in use.
func (c *Chunker) Counter() TokenCounter { return c.counter }

// Chunk splits text into ordered chunks. Empty or whitespace-only text
// yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	l := analyze(text)
	if total := c.counter.Count(text); total <= c.opts.MaxTokens {
		return []Chunk{c.build(l, 0, span{0, len(text)})}
	}

	b := &builder{c: c, l: l}
	for _, u := range l.units(c.counter) {
		b.add(u)
	}
	b.flush()
	b.mergeTail()

	c.logger.Debug("chunking_done",
		slog.Int("chunks", len(b.out)),
		slog.Int("bytes", len(text)))
	return b.out
}

// build materializes a chunk whose content is text[contentStart:own.end].
func (c *Chunker) build(l *layout, contentStart int, own span) Chunk {
	content := l.text[contentStart:own.end]
	return Chunk{
		Content:      content,
		StartToken:   c.counter.Count(l.text[:contentStart]),
		EndToken:     c.counter.Count(l.text[:own.end]),
		TokenCount:   c.counter.Count(content),
		SectionTitle: l.sectionTitle(own.start, own.end),
		IsCodeBlock:  l.hasFence(span{contentStart, own.end}),
		StartOffset:  own.start,
		EndOffset:    own.end,
		OverlapLen:   own.start - contentStart,
	}
}

// builder accumulates units into chunks.
type builder struct {
	c   *Chunker
	l   *layout
	out []Chunk

	// current chunk: overlap text[ovStart:start], own span text[start:end]
	ovStart   int
	ovTokens  int
	start     int
	end       int
	ownTokens int
	members   []unit
}

func (b *builder) empty() bool { return len(b.members) == 0 }

func (b *builder) add(u unit) {
	opts := b.c.opts

	if u.tokens > opts.MaxTokens {
		b.flush()
		b.forceSplit(u)
		b.reset(u.end, u.end, 0)
		return
	}

	if !b.empty() {
		total := b.ovTokens + b.ownTokens + u.tokens
		closeAtTarget := total > opts.TargetTokens && b.ovTokens+b.ownTokens >= opts.MinTokens
		if closeAtTarget || total > opts.MaxTokens {
			ovStart, ovTokens := b.overlap()
			b.flush()
			b.reset(ovStart, u.start, ovTokens)
		}
	}

	if b.empty() {
		if b.ovTokens+u.tokens > opts.MaxTokens {
			b.reset(u.start, u.start, 0)
		}
		b.start = u.start
	}
	b.members = append(b.members, u)
	b.end = u.end
	b.ownTokens += u.tokens
}

func (b *builder) reset(ovStart, start, ovTokens int) {
	b.ovStart, b.start, b.end = ovStart, start, start
	b.ovTokens, b.ownTokens = ovTokens, 0
	b.members = b.members[:0]
}

func (b *builder) flush() {
	if b.empty() {
		return
	}
	b.emit(b.ovStart, span{b.start, b.end})
	b.members = b.members[:0]
}

func (b *builder) emit(contentStart int, own span) {
	ch := b.c.build(b.l, contentStart, own)
	ch.Index = len(b.out)
	b.out = append(b.out, ch)
}

// overlap picks the trailing sentences of the current chunk's own span
// whose tokens total at most OverlapTokens. It never reaches back across a
// code unit and never takes the whole chunk.
func (b *builder) overlap() (int, int) {
	budget := b.c.opts.OverlapTokens
	start, tokens := b.end, 0
	if budget <= 0 {
		return start, 0
	}

	for i := len(b.members) - 1; i >= 0; i-- {
		u := b.members[i]
		if u.code {
			break
		}
		sentences := b.l.sentences(u.span, b.c.counter)
		for j := len(sentences) - 1; j >= 0; j-- {
			s := sentences[j]
			if tokens+s.tokens > budget || s.start <= b.start {
				return start, tokens
			}
			start, tokens = s.start, tokens+s.tokens
		}
	}
	return start, tokens
}

// forceSplit packs the sentences of an oversized unit into chunks of at
// most TargetTokens, with no overlap. A sentence that alone exceeds
// MaxTokens is emitted as-is.
func (b *builder) forceSplit(u unit) {
	opts := b.c.opts
	start, tokens := u.start, 0
	end := u.start

	for _, s := range b.l.sentences(u.span, b.c.counter) {
		if s.tokens > opts.MaxTokens {
			if end > start {
				b.emit(start, span{start, end})
			}
			err := bankerrors.CapacityError(s.tokens, opts.MaxTokens)
			b.c.logger.Warn("chunk_capacity_exceeded",
				slog.Int("tokens", s.tokens),
				slog.Int("max_tokens", opts.MaxTokens),
				bankerrors.LogAttr(err))
			b.emit(s.start, s.span)
			start, end, tokens = s.end, s.end, 0
			continue
		}
		if end > start && tokens+s.tokens > opts.TargetTokens {
			b.emit(start, span{start, end})
			start, tokens = s.start, 0
		}
		end = s.end
		tokens += s.tokens
	}
	if end > start {
		b.emit(start, span{start, end})
	}
}

// mergeTail folds a final chunk below MinTokens into its predecessor when
// the result stays within MaxTokens.
func (b *builder) mergeTail() {
	n := len(b.out)
	if n < 2 {
		return
	}
	last, prev := b.out[n-1], b.out[n-2]
	if last.TokenCount >= b.c.opts.MinTokens {
		return
	}

	contentStart := prev.StartOffset - prev.OverlapLen
	merged := b.c.build(b.l, contentStart, span{prev.StartOffset, last.EndOffset})
	if merged.TokenCount > b.c.opts.MaxTokens {
		return
	}
	merged.Index = prev.Index
	b.out = append(b.out[:n-2], merged)
}
