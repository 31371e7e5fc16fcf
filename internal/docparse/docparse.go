// Package docparse turns raw source material into a ParsedDocument the
// analyzer and extractors operate on.
package docparse

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"treeflow/internal/util"
)

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Level   int    `json:"level"`
	Page    int    `json:"page,omitempty"`
}

type ParsedDocument struct {
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	Sections  []Section `json:"sections"`
	Figures   int       `json:"figures"`
	Tables    int       `json:"tables"`
	PageCount int       `json:"page_count,omitempty"`
}

// Text concatenates section bodies in order.
func (d ParsedDocument) Text() string {
	var b strings.Builder
	for _, s := range d.Sections {
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString("\n")
		}
		b.WriteString(s.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	numbered  = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+\S`)
	figureRe  = regexp.MustCompile(`(?i)\bfigure\s+\d+`)
	tableRe   = regexp.MustCompile(`(?i)\btable\s+\d+`)
)

// Parse splits plain or markdown-ish text into sections on heading lines.
// Markdown heading depth or numeric heading depth (2.1.3 -> level 3) sets the
// nesting level; preamble text before the first heading becomes an untitled
// level-1 section.
func Parse(name, text string) ParsedDocument {
	doc := ParsedDocument{Name: name}
	text = util.SanitizeText(text)
	if text == "" {
		return doc
	}
	doc.Figures = len(figureRe.FindAllString(text, -1))
	doc.Tables = len(tableRe.FindAllString(text, -1))

	lines := strings.Split(text, "\n")
	cur := Section{Level: 1}
	var body strings.Builder
	flush := func() {
		cur.Content = strings.TrimSpace(body.String())
		if cur.Title != "" || cur.Content != "" {
			doc.Sections = append(doc.Sections, cur)
		}
		body.Reset()
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			cur = Section{Title: strings.TrimSpace(m[2]), Level: len(m[1])}
			continue
		}
		if m := numbered.FindStringSubmatch(trimmed); m != nil && len(trimmed) < 120 {
			flush()
			level := strings.Count(m[1], ".") + 1
			cur = Section{Title: trimmed, Level: level}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	if len(doc.Sections) > 0 && doc.Sections[0].Title != "" {
		doc.Title = doc.Sections[0].Title
	}
	return doc
}

// ExtractPDFText pulls plain text from a PDF on disk.
func ExtractPDFText(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", 0, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return "", 0, util.ErrNoExtractableText
	}
	return text, r.NumPage(), nil
}

// TopLevelSections returns the sections hierarchical extraction splits on,
// each carrying the bodies of its deeper subsections. The split happens at
// the shallowest level present, except when that level holds a single
// section (a document title) above deeper ones; then the split descends one
// level so the real structure is kept.
func TopLevelSections(doc ParsedDocument) []Section {
	if len(doc.Sections) == 0 {
		return nil
	}
	split := splitLevel(doc.Sections)
	out := make([]Section, 0)
	var cur *Section
	for _, s := range doc.Sections {
		if s.Level <= split {
			if cur != nil {
				out = append(out, *cur)
			}
			copyS := s
			cur = &copyS
			continue
		}
		if cur == nil {
			copyS := s
			copyS.Level = split
			cur = &copyS
			continue
		}
		cur.Content = strings.TrimSpace(cur.Content + "\n\n" + s.Title + "\n" + s.Content)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

func splitLevel(sections []Section) int {
	minLevel := sections[0].Level
	for _, s := range sections {
		if s.Level < minLevel {
			minLevel = s.Level
		}
	}
	atMin := 0
	next := 0
	for _, s := range sections {
		if s.Level == minLevel {
			atMin++
		} else if next == 0 || s.Level < next {
			next = s.Level
		}
	}
	if atMin == 1 && next > 0 {
		return next
	}
	return minLevel
}

// MaxNestingDepth reports the deepest heading level seen.
func MaxNestingDepth(doc ParsedDocument) int {
	depth := 0
	for _, s := range doc.Sections {
		if s.Level > depth {
			depth = s.Level
		}
	}
	return depth
}
