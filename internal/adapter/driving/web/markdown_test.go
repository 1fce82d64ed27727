package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestRenderMarkdown_ReviewHeadings(t *testing.T) {
	result := RenderMarkdown("## Issues\n\n- **HIGH** missing nil check")
	assert.Contains(t, result, "<h2")
	assert.Contains(t, result, "<strong>HIGH</strong>")
	assert.Contains(t, result, "<li>")
}

func TestRenderMarkdown_InlineCode(t *testing.T) {
	result := RenderMarkdown("use `fmt.Println`")
	assert.Contains(t, result, "<code>fmt.Println</code>")
}

func TestRenderMarkdown_CodeBlock(t *testing.T) {
	result := RenderMarkdown("```go\nfmt.Println(\"hello\")\n```")
	assert.Contains(t, result, "<code")
	assert.Contains(t, result, "fmt.Println")
}

func TestRenderMarkdown_Link(t *testing.T) {
	result := RenderMarkdown("[click](https://example.com)")
	assert.Contains(t, result, `<a href="https://example.com"`)
	assert.Contains(t, result, "click</a>")
}

func TestRenderMarkdown_SanitizesScript(t *testing.T) {
	result := RenderMarkdown(`<script>alert("xss")</script>`)
	assert.NotContains(t, result, "<script>")
}

func TestRenderMarkdown_GFMTable(t *testing.T) {
	result := RenderMarkdown("| file | risk |\n| --- | --- |\n| a.go | high |")
	assert.Contains(t, result, "<table>")
	assert.Contains(t, result, "<td>a.go</td>")
}

func TestRenderDiff_EmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderDiff(""))
}

func TestRenderDiff_LineClasses(t *testing.T) {
	diff := "diff --git a/x.go b/x.go\nindex 1111111..2222222 100644\n--- a/x.go\n+++ b/x.go\n@@ -1,3 +1,4 @@\n context line\n+added line\n-removed line\n"
	result := RenderDiff(diff)

	assert.Equal(t, 4, strings.Count(result, `class="diff-file"`))
	assert.Contains(t, result, `<span class="diff-header">@@ -1,3 +1,4 @@</span>`)
	assert.Contains(t, result, `<span class="diff-ctx"> context line</span>`)
	assert.Contains(t, result, `<span class="diff-add">+added line</span>`)
	assert.Contains(t, result, `<span class="diff-del">-removed line</span>`)
}

func TestRenderDiff_EscapesHTML(t *testing.T) {
	result := RenderDiff("+<script>alert('xss')</script>")

	assert.NotContains(t, result, "<script>")
	assert.Contains(t, result, "&lt;script&gt;")
	assert.Contains(t, result, `class="diff-add"`)
}

func TestRenderDiff_OneSpanPerLine(t *testing.T) {
	result := RenderDiff("@@ header\n+add\n-del\n")
	assert.Equal(t, 3, strings.Count(result, "<span"))
}
