package pdfextract

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// RowTolerance is how far apart two baselines may be and still count as the
// same visual line, in PDF user-space units.
const RowTolerance = 2.0

// Fragment is a run of text anchored at (X, Y). Y grows upward.
type Fragment struct {
	X    float64
	Y    float64
	Text string
}

type PageText struct {
	Number int
	Text   string
}

type row struct {
	y       float64
	entries []Fragment
}

// AssembleRows rebuilds reading order from unordered fragments: rows top to
// bottom, fragments left to right, joined by single spaces and newlines.
func AssembleRows(fragments []Fragment) string {
	var rows []*row
	for _, f := range fragments {
		var target *row
		for _, r := range rows {
			if math.Abs(r.y-f.Y) <= RowTolerance {
				target = r
				break
			}
		}
		if target == nil {
			target = &row{y: f.Y}
			rows = append(rows, target)
		}
		target.entries = append(target.entries, f)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		sort.SliceStable(r.entries, func(i, j int) bool { return r.entries[i].X < r.entries[j].X })
		parts := make([]string, 0, len(r.entries))
		for _, e := range r.entries {
			if s := strings.TrimSpace(e.Text); s != "" {
				parts = append(parts, s)
			}
		}
		if line := strings.Join(parts, " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ExtractFile opens a PDF on disk and returns the reconstructed text of every page.
func ExtractFile(path string) ([]PageText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf failed: %w", err)
	}
	return Extract(f, info.Size())
}

// Extract reads every page of the PDF. A page whose content stream cannot be
// decoded yields empty text instead of failing the whole document.
func Extract(r io.ReaderAt, size int64) (pages []PageText, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("parse pdf failed: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("parse pdf failed: %w", err)
	}

	total := reader.NumPage()
	pages = make([]PageText, 0, total)
	for i := 1; i <= total; i++ {
		pages = append(pages, PageText{Number: i, Text: pageText(reader.Page(i))})
	}
	return pages, nil
}

func pageText(p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if p.V.IsNull() {
		return ""
	}
	return AssembleRows(mergeGlyphs(p.Content().Text))
}

// mergeGlyphs joins consecutive glyphs on one baseline into word-level
// fragments. A space glyph or a visible gap starts a new fragment.
func mergeGlyphs(glyphs []pdf.Text) []Fragment {
	var (
		out     []Fragment
		cur     strings.Builder
		curX    float64
		curY    float64
		nextX   float64
		lastSz  float64
		started bool
	)
	flush := func() {
		if started && strings.TrimSpace(cur.String()) != "" {
			out = append(out, Fragment{X: curX, Y: curY, Text: cur.String()})
		}
		cur.Reset()
		started = false
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		gap := math.Max(lastSz, g.FontSize) * 0.25
		if started && (math.Abs(g.Y-curY) > 0.5 || g.X < nextX-gap || g.X > nextX+gap) {
			flush()
		}
		if !started {
			curX, curY = g.X, g.Y
			started = true
		}
		cur.WriteString(g.S)
		nextX = g.X + g.W
		lastSz = g.FontSize
	}
	flush()
	return out
}
