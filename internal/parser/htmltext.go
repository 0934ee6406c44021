package parser

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// stripPolicy removes every tag and drops script/style content entirely.
var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.SkipElementsContent("script", "style")
	return p
}()

// StripHTML reduces an HTML body to plain text: tags removed, entities
// unescaped, each line trimmed, runs of internal whitespace collapsed, and
// blank lines dropped.
func StripHTML(input string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(input))

	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for _, chunk := range strings.Split(strings.TrimSpace(line), "  ") {
			chunk = strings.TrimSpace(chunk)
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
		}
	}
	return strings.Join(chunks, "\n")
}
