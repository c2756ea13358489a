package markdown

import (
	"regexp"
	"strings"
)

// Inline syntax, replaced innermost-first. Images go before links so the
// leading "!" is consumed with the image form. Underscore emphasis is
// word-bounded so snake_case identifiers survive.
var (
	imageRe       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	wikiAliasRe   = regexp.MustCompile(`\[\[[^\]|]*\|([^\]]*)\]\]`)
	wikiPlainRe   = regexp.MustCompile(`\[\[([^\]]*)\]\]`)
	boldStarRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe   = regexp.MustCompile(`__(.+?)__`)
	italicStarRe  = regexp.MustCompile(`\*([^*\s][^*]*?)\*`)
	italicUnderRe = regexp.MustCompile(`\b_([^_]+?)_\b`)
	strikeRe      = regexp.MustCompile(`~~(.+?)~~`)
	inlineCodeRe  = regexp.MustCompile("`([^`]*)`")
	headingRe     = regexp.MustCompile(`^#{1,6}[ \t]+`)
	blockquoteRe  = regexp.MustCompile(`^[ \t]*(>[ \t]?)+`)
	hrRe          = regexp.MustCompile(`^[ \t]*(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
)

// Strip removes markdown syntax for the lexical index: heading markers,
// emphasis, inline code ticks, strikethrough, link syntax, blockquote
// markers, and horizontal rules. Fenced code block interiors pass through
// verbatim; the fence lines themselves are dropped.
func Strip(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var fence string

	for _, line := range lines {
		if f := fenceMarker(line); f != "" {
			if fence == "" {
				fence = f
			} else if f == fence {
				fence = ""
			}
			continue
		}
		if fence != "" {
			out = append(out, line)
			continue
		}

		if hrRe.MatchString(line) {
			continue
		}
		line = headingRe.ReplaceAllString(line, "")
		line = blockquoteRe.ReplaceAllString(line, "")
		line = stripInline(line)
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// stripInline removes inline markers from one line, keeping the text.
func stripInline(line string) string {
	line = imageRe.ReplaceAllString(line, "$1")
	line = linkRe.ReplaceAllString(line, "$1")
	line = wikiAliasRe.ReplaceAllString(line, "$1")
	line = wikiPlainRe.ReplaceAllString(line, "$1")
	line = inlineCodeRe.ReplaceAllString(line, "$1")
	line = boldStarRe.ReplaceAllString(line, "$1")
	line = boldUnderRe.ReplaceAllString(line, "$1")
	line = italicStarRe.ReplaceAllString(line, "$1")
	line = italicUnderRe.ReplaceAllString(line, "$1")
	line = strikeRe.ReplaceAllString(line, "$1")
	return line
}

// CodeBlock is one fenced block with its info-string language tag.
type CodeBlock struct {
	Lang string
	Code string
}

// CodeBlocks extracts fenced blocks (``` or ~~~) in document order, for
// the index_code_blocks option.
func CodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	var fence, lang string
	var body []string

	for _, line := range strings.Split(text, "\n") {
		f := fenceMarker(line)
		switch {
		case f != "" && fence == "":
			fence = f
			rest := strings.TrimLeft(line, " \t")
			rest = strings.TrimPrefix(rest, f)
			lang = firstToken(rest)
			body = body[:0]
		case f == fence && fence != "":
			blocks = append(blocks, CodeBlock{Lang: lang, Code: strings.Join(body, "\n")})
			fence = ""
		case fence != "":
			body = append(body, line)
		}
	}
	return blocks
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}
