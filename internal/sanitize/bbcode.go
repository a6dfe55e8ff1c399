package sanitize

import (
	"html"
	"regexp"
	"strings"
)

// bbRule rewrites one BBCode construct into HTML.
type bbRule struct {
	re   *regexp.Regexp
	repl string
}

// bbRules are applied in order to already HTML-escaped text. Tag names are
// case-insensitive and may span lines.
var bbRules = []bbRule{
	{regexp.MustCompile(`(?is)\[b\](.*?)\[/b\]`), `<strong>$1</strong>`},
	{regexp.MustCompile(`(?is)\[i\](.*?)\[/i\]`), `<em>$1</em>`},
	{regexp.MustCompile(`(?is)\[u\](.*?)\[/u\]`), `<u>$1</u>`},
	{regexp.MustCompile(`(?is)\[s\](.*?)\[/s\]`), `<del>$1</del>`},
	{regexp.MustCompile(`(?is)\[quote\](.*?)\[/quote\]`), `<blockquote>$1</blockquote>`},
	{regexp.MustCompile(`(?is)\[code\](.*?)\[/code\]`), `<code>$1</code>`},
	{regexp.MustCompile(`(?is)\[url=(https?://[^\]\s]+)\](.*?)\[/url\]`), `<a href="$1">$2</a>`},
	{regexp.MustCompile(`(?is)\[url\](https?://[^\[\s]+)\[/url\]`), `<a href="$1">$1</a>`},
	{regexp.MustCompile(`(?is)\[email\]([^\[\s@]+@[^\[\s]+)\[/email\]`), `<a href="mailto:$1">$1</a>`},
}

// BBCode converts a note written with BBCode tags ([b], [i], [u], [s],
// [quote], [code], [url], [email]) into sanitized HTML. Raw HTML in the
// input is escaped first, and line breaks become <br />.
func BBCode(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	out := html.EscapeString(input)
	for _, r := range bbRules {
		out = r.re.ReplaceAllString(out, r.repl)
	}

	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\n", "<br />\n")

	return HTML(out)
}
