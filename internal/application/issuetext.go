package application

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	textPolicy = bluemonday.StrictPolicy()

	// blockBreaks turns paragraph and heading ends into blank lines and code
	// blocks into fences once tags are stripped. The renderer already ends
	// every block with a newline.
	blockBreaks = strings.NewReplacer(
		"<pre>", "\n```\n",
		"</pre>", "```\n",
		"</p>", "</p>\n",
		"</h1>", "</h1>\n",
		"</h2>", "</h2>\n",
		"</h3>", "</h3>\n",
		"</h4>", "</h4>\n",
		"<br>", "\n",
	)

	blankRuns   = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
	inlineSpace = regexp.MustCompile(`[ \t]+\n`)
)

// IssueText converts issue Markdown to plain text for prompts: it is rendered
// with GFM, stripped of all HTML (embedded raw HTML included), unescaped,
// blank-line runs collapsed and the result cut to maxRunes runes. A maxRunes
// of zero or less disables truncation.
func IssueText(markdown string, maxRunes int) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	var buf bytes.Buffer
	rendered := markdown
	if err := mdRenderer.Convert([]byte(markdown), &buf); err == nil {
		rendered = buf.String()
	}

	text := textPolicy.Sanitize(blockBreaks.Replace(rendered))
	text = html.UnescapeString(text)
	text = inlineSpace.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	return truncateRunes(text, maxRunes)
}

// truncateRunes cuts s to at most maxRunes runes, marking the cut with an
// ellipsis.
func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	const marker = "..."
	keep := max(maxRunes-len(marker), 0)
	i := 0
	for pos := range s {
		if i == keep {
			return s[:pos] + marker
		}
		i++
	}
	return s
}
