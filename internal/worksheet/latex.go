// Package worksheet converts LaTeX question lists into HTML previews and
// DOCX/PDF documents.
package worksheet

import (
	"html"
	"regexp"
	"strings"
)

var (
	enumerateMarkers = regexp.MustCompile(`\\begin\{enumerate\}|\\end\{enumerate\}`)
	inlineMath       = regexp.MustCompile(`\$([^$]+)\$`)

	plainTextRules = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`\\frac\{([^}]+)\}\{([^}]+)\}`), "($1)/($2)"},
		{regexp.MustCompile(`\\sqrt\{([^}]+)\}`), "sqrt($1)"},
		{inlineMath, "$1"},
		{regexp.MustCompile(`\\cdot`), "×"},
		{regexp.MustCompile(`\\times`), "×"},
		{regexp.MustCompile(`\\div`), "÷"},
		{regexp.MustCompile(`\\degrees`), "°"},
		{regexp.MustCompile(`\\pi`), "π"},
	}
)

// Document 工作表内容
type Document struct {
	Title     string
	Questions []string
	Answers   []string
}

// SplitItems 按 \item 拆分题目
func SplitItems(latex string) []string {
	var items []string
	for _, part := range strings.Split(latex, `\item`) {
		content := strings.TrimSpace(enumerateMarkers.ReplaceAllString(part, ""))
		if content != "" {
			items = append(items, content)
		}
	}
	return items
}

// ToHTML 生成预览用的有序列表，公式保留为 \( … \) 由前端 KaTeX 渲染
func ToHTML(latex string) string {
	var sb strings.Builder
	sb.WriteString("<ol>")
	for _, item := range SplitItems(latex) {
		sb.WriteString("<li>")
		last := 0
		for _, loc := range inlineMath.FindAllStringSubmatchIndex(item, -1) {
			sb.WriteString(html.EscapeString(item[last:loc[0]]))
			sb.WriteString(`<span class="math-inline">\(`)
			sb.WriteString(html.EscapeString(item[loc[2]:loc[3]]))
			sb.WriteString(`\)</span>`)
			last = loc[1]
		}
		sb.WriteString(html.EscapeString(item[last:]))
		sb.WriteString("</li>")
	}
	sb.WriteString("</ol>")
	return sb.String()
}

// PreviewHTML 附带 KaTeX 样式的预览片段
func PreviewHTML(body string) string {
	return `<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.8/dist/katex.min.css">
<style>
  .katex { font-size: 1.1em; }
  ol { padding-left: 1.5em; }
  li { margin-bottom: 1em; line-height: 1.6; }
</style>
` + body
}

// ToPlainText 将题目转换为纯文本，用于 DOCX/PDF
func ToPlainText(latex string) []string {
	var out []string
	for _, item := range SplitItems(latex) {
		for _, rule := range plainTextRules {
			item = rule.re.ReplaceAllString(item, rule.repl)
		}
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
