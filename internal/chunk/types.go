package chunk

// Token budget defaults, sized for long-context embedding models.
const (
	DefaultTargetTokens  = 8192
	DefaultMaxTokens     = 16384
	DefaultMinTokens     = 256
	DefaultOverlapTokens = 256
)

// Chunk is a bounded contiguous span of a document.
//
// Content is the text handed to the embedder. Its first OverlapLen bytes
// repeat the tail of the previous chunk; the rest is the chunk's own span
// source[StartOffset:EndOffset]. Joining Content[OverlapLen:] over all
// chunks in order reproduces the source exactly.
type Chunk struct {
	Index        int
	Content      string
	StartToken   int // token position of Content's first byte in the source
	EndToken     int // token position just past Content's last byte
	TokenCount   int
	SectionTitle string // nearest preceding markdown heading, "" if none
	IsCodeBlock  bool   // Content contains a fenced code block

	StartOffset int
	EndOffset   int
	OverlapLen  int
}

// Own returns the chunk's text without the repeated overlap prefix.
func (c Chunk) Own() string {
	return c.Content[c.OverlapLen:]
}

// Options are the chunker's token budgets.
type Options struct {
	// TargetTokens is the size a chunk grows toward before it is closed.
	TargetTokens int
	// MaxTokens is the hard cap. Only a single sentence larger than the
	// cap can produce a bigger chunk.
	MaxTokens int
	// MinTokens is the size a chunk must reach before it may be closed
	// at TargetTokens. A trailing chunk below it is merged backwards.
	MinTokens int
	// OverlapTokens bounds the trailing sentences repeated at the start
	// of the next chunk.
	OverlapTokens int
}

// DefaultOptions returns the default budgets.
func DefaultOptions() Options {
	return Options{
		TargetTokens:  DefaultTargetTokens,
		MaxTokens:     DefaultMaxTokens,
		MinTokens:     DefaultMinTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// withDefaults fills zero target and max and repairs inconsistent budgets.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.TargetTokens <= 0 {
		o.TargetTokens = min(d.TargetTokens, o.MaxTokens)
	}
	if o.TargetTokens > o.MaxTokens {
		o.TargetTokens = o.MaxTokens
	}
	if o.MinTokens < 0 {
		o.MinTokens = 0
	}
	if o.MinTokens > o.TargetTokens {
		o.MinTokens = o.TargetTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.TargetTokens {
		o.OverlapTokens = o.TargetTokens / 4
	}
	return o
}
