package application

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestIssueText_Empty(t *testing.T) {
	assert.Equal(t, "", IssueText("", 100))
	assert.Equal(t, "", IssueText("   \n\n", 100))
}

func TestIssueText_StripsFormatting(t *testing.T) {
	got := IssueText("**bold** and `code` and [a link](https://example.com)", 0)
	assert.Equal(t, "bold and code and a link", got)
}

func TestIssueText_KeepsParagraphsAndLists(t *testing.T) {
	got := IssueText("First paragraph.\n\nSecond paragraph.\n\n- one\n- two", 0)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.\n\none\ntwo", got)
}

func TestIssueText_CodeBlocksFenced(t *testing.T) {
	got := IssueText("Logs:\n\n```\nctr: failed to mount\n```", 0)

	assert.Contains(t, got, "Logs:")
	assert.Contains(t, got, "```\nctr: failed to mount\n```")
}

func TestIssueText_RemovesRawHTMLAndUnescapes(t *testing.T) {
	got := IssueText(`<details><summary>Env</summary>runc & "containerd" <script>alert(1)</script></details>`, 0)

	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "&amp;")
	assert.NotContains(t, got, "alert")
	assert.Contains(t, got, `runc & "containerd"`)
}

func TestIssueText_CollapsesBlankRuns(t *testing.T) {
	got := IssueText("a\n\n\n\n\nb", 0)
	assert.Equal(t, "a\n\nb", got)
}

func TestIssueText_Truncates(t *testing.T) {
	got := IssueText(strings.Repeat("é", 50), 10)

	assert.Equal(t, 10, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "abcdefg...", truncateRunes("abcdefghijklmnop", 10))
	assert.Equal(t, "...", truncateRunes("abcdef", 2))
	assert.Equal(t, "abcdef", truncateRunes("abcdef", 0))
}
