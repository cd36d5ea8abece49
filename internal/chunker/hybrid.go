package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"docchat/internal/pkg/pdfextract"
)

const (
	DefaultMaxChars = 1400
	DefaultMinChars = 600

	// EmptyDocumentText stands in for documents with no extractable text so
	// they remain chattable, just answerless.
	EmptyDocumentText = "No extractable text was found in this document."

	paragraphSeparator = "\n\n"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

type Chunk struct {
	Index     int
	Content   string
	PageStart int
	PageEnd   int
}

type Options struct {
	MaxChars int
	MinChars int
}

// Hybrid accumulates paragraphs into chunks bounded by the two thresholds.
type Hybrid struct {
	max int
	min int
}

func NewHybrid(opts Options) *Hybrid {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.MinChars > opts.MaxChars {
		opts.MinChars = opts.MaxChars / 2
	}
	return &Hybrid{max: opts.MaxChars, min: opts.MinChars}
}

// Split returns page-tagged chunks in document order. Lengths are measured in
// code points.
//
// Before a paragraph is appended the buffer is flushed when the result would
// exceed max and either the buffer already holds min characters or the
// paragraph fits within max on its own. An oversized paragraph therefore
// absorbs a short buffer instead of leaving a tiny chunk behind, and no chunk
// exceeds max unless it contains a paragraph that does.
func (h *Hybrid) Split(pages []pdfextract.PageText) []Chunk {
	var (
		chunks    []Chunk
		current   strings.Builder
		curLen    int
		startPage int
		endPage   int
	)
	flush := func() {
		if strings.TrimSpace(current.String()) == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Content:   current.String(),
			PageStart: startPage,
			PageEnd:   endPage,
		})
		current.Reset()
		curLen = 0
	}

	for _, page := range pages {
		for _, para := range Paragraphs(page.Text) {
			paraLen := utf8.RuneCountInString(para)
			if curLen > 0 {
				next := curLen + len(paragraphSeparator) + paraLen
				if next > h.max && (curLen >= h.min || paraLen <= h.max) {
					flush()
				}
			}
			if curLen == 0 {
				startPage = page.Number
			} else {
				current.WriteString(paragraphSeparator)
				curLen += len(paragraphSeparator)
			}
			current.WriteString(para)
			curLen += paraLen
			endPage = page.Number
		}
	}
	flush()
	return chunks
}

// SplitWithFallback never returns an empty slice: a document without
// paragraphs becomes one chunk of its combined text, or of EmptyDocumentText.
func (h *Hybrid) SplitWithFallback(pages []pdfextract.PageText) []Chunk {
	if chunks := h.Split(pages); len(chunks) > 0 {
		return chunks
	}

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.Text)
	}
	content := strings.TrimSpace(strings.Join(texts, "\n"))
	if content == "" {
		content = EmptyDocumentText
	}
	first, last := 1, 1
	if len(pages) > 0 {
		first, last = pages[0].Number, pages[len(pages)-1].Number
	}
	return []Chunk{{Index: 0, Content: content, PageStart: first, PageEnd: last}}
}

func Paragraphs(text string) []string {
	raw := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FullText renders pages the way they are stored on the document row.
func FullText(pages []pdfextract.PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, "Page "+strconv.Itoa(p.Number)+"\n"+p.Text)
	}
	return strings.Join(parts, "\n\n")
}
