package catalog

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is a top-level slice of a source book, split at level-1 headings.
type Section struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

// ParseSections splits markdown content into sections at level-1 headings.
// Content appearing before the first heading is titled "Introduction".
func ParseSections(source []byte) []Section {
	md := goldmark.DefaultParser()
	root := md.Parse(text.NewReader(source))

	type boundary struct {
		title string
		start int // byte offset of the heading line
		end   int // byte offset just past the heading text
	}
	var bounds []boundary

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		bounds = append(bounds, boundary{
			title: headingText(h, source),
			start: lineStart(source, seg.Start),
			end:   seg.Stop,
		})
	}

	var sections []Section
	appendSection := func(title string, body []byte) {
		content := strings.TrimSpace(string(body))
		if content == "" {
			return
		}
		sections = append(sections, Section{Title: title, Content: content})
	}

	if len(bounds) == 0 {
		appendSection("Introduction", source)
		return sections
	}

	appendSection("Introduction", source[:bounds[0].start])
	for i, b := range bounds {
		stop := len(source)
		if i+1 < len(bounds) {
			stop = bounds[i+1].start
		}
		appendSection(b.title, source[b.end:stop])
	}
	return sections
}

func headingText(h *ast.Heading, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < h.Lines().Len(); i++ {
		seg := h.Lines().At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimSpace(buf.String())
}

// lineStart walks back from off to the start of its line so a section
// boundary lands before the "# " marker rather than after it.
func lineStart(source []byte, off int) int {
	for off > 0 && source[off-1] != '\n' {
		off--
	}
	return off
}
