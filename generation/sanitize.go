package generation

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagPattern   = regexp.MustCompile(`(?s)<[a-zA-Z/!][^>]*>`)
	codeFencePattern = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
	labelPattern     = regexp.MustCompile(`(?i)^\s*(here(?:'s| is) (?:a|your) (?:facebook )?post:?|facebook post:|post:|caption:)\s*`)
	emphasisPattern  = regexp.MustCompile(`(\*\*|__|\*|~~|` + "`" + `)`)
	headingPattern   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	spacesPattern    = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	blockEndPattern  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>`)
)

// Sanitize turns raw model output into publishable plain text: markup is
// stripped, labels and wrapping quotes removed, whitespace collapsed. An empty
// result means the output was unusable.
func Sanitize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")

	if htmlTagPattern.MatchString(text) {
		text = stripMarkup(text)
	}

	text = codeFencePattern.ReplaceAllString(text, "")
	text = headingPattern.ReplaceAllString(text, "")
	text = emphasisPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = labelPattern.ReplaceAllString(text, "")
	text = trimQuotes(strings.TrimSpace(text))

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spacesPattern.ReplaceAllString(l, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func stripMarkup(s string) string {
	// Block-level breaks survive as newlines.
	s = blockEndPattern.ReplaceAllString(s, "$0\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return htmlTagPattern.ReplaceAllString(s, "")
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

func trimQuotes(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}, {"«", "»"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			inner := s[len(p[0]) : len(s)-len(p[1])]
			if !strings.Contains(inner, p[0]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}
