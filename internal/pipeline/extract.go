package pipeline

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText strips markup from an HTML message body and collapses
// whitespace. The result is the query text used for retrieval and the AI
// prompt. Script and style contents are skipped entirely.
func ExtractText(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))

	var parts []string
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := strings.Join(strings.Fields(tokenizer.Token().Data), " "); text != "" {
				parts = append(parts, text)
			}
		}
	}
}
