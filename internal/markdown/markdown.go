// Package markdown extracts structure from markdown notes: YAML
// frontmatter, ATX headings, wiki-links, fenced code blocks, and an
// optional syntax-stripped variant for the lexical index.
package markdown

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Heading is one ATX heading in document order.
type Heading struct {
	Level int    // 1..6
	Text  string // literal text, trailing #s trimmed
}

// Meta is the extracted structure of one markdown file.
type Meta struct {
	// Title comes from frontmatter, falling back to the first heading.
	Title string

	// Tags from frontmatter, trimmed and lowercased, document order.
	Tags []string

	// Links are wiki-link target stems: lowercased, deduplicated, sorted.
	Links []string

	// Headings in document order.
	Headings []Heading
}

// frontmatter is the YAML shape we read. Tags accepts both a block list
// and an inline flow sequence; scalar tags are wrapped on decode.
type frontmatter struct {
	Title string  `yaml:"title"`
	Tags  tagList `yaml:"tags"`
}

type tagList []string

// UnmarshalYAML accepts either a sequence of strings or a single scalar.
func (t *tagList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*t = items
		return nil
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s != "" {
			*t = []string{s}
		}
		return nil
	default:
		return fmt.Errorf("tags: unsupported YAML node kind %d", node.Kind)
	}
}

// Parse extracts metadata from normalized (LF) markdown text. It never
// fails: malformed frontmatter is treated as absent.
func Parse(text string) *Meta {
	m := &Meta{}

	body := text
	if fm, rest, ok := splitFrontmatter(text); ok {
		body = rest
		var f frontmatter
		if err := yaml.Unmarshal([]byte(fm), &f); err == nil {
			m.Title = strings.TrimSpace(f.Title)
			for _, tag := range f.Tags {
				tag = strings.ToLower(strings.TrimSpace(tag))
				if tag != "" {
					m.Tags = append(m.Tags, tag)
				}
			}
		}
	}

	m.Headings = extractHeadings(body)
	m.Links = extractLinks(body)

	if m.Title == "" && len(m.Headings) > 0 {
		m.Title = m.Headings[0].Text
	}
	return m
}

// HeadingStrings renders headings as "h{level}:{text}" for storage.
func (m *Meta) HeadingStrings() []string {
	if len(m.Headings) == 0 {
		return nil
	}
	out := make([]string, len(m.Headings))
	for i, h := range m.Headings {
		out[i] = fmt.Sprintf("h%d:%s", h.Level, h.Text)
	}
	return out
}

// splitFrontmatter separates a leading "---" YAML block from the body.
func splitFrontmatter(text string) (fm, body string, ok bool) {
	if !strings.HasPrefix(text, "---\n") && text != "---" {
		return "", "", false
	}
	rest := strings.TrimPrefix(text, "---\n")
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == "---" {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", "", false
}

// extractHeadings collects ATX headings, skipping fenced code blocks.
func extractHeadings(body string) []Heading {
	var out []Heading
	var fence string

	for _, line := range strings.Split(body, "\n") {
		if f := fenceMarker(line); f != "" {
			if fence == "" {
				fence = f
			} else if f == fence {
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		level := 0
		for level < len(line) && level < 7 && line[level] == '#' {
			level++
		}
		if level == 0 || level > 6 {
			continue
		}
		if level < len(line) && line[level] != ' ' && line[level] != '\t' {
			continue // "#hashtag" is not a heading
		}
		text := strings.TrimSpace(line[level:])
		text = strings.TrimRight(text, "#")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, Heading{Level: level, Text: text})
	}
	return out
}

// extractLinks collects [[target]] and [[target|display]] stems outside
// code fences. Stems drop any path and section anchor and compare
// case-insensitively; the result is deduplicated and sorted.
func extractLinks(body string) []string {
	seen := make(map[string]bool)
	var fence string

	for _, line := range strings.Split(body, "\n") {
		if f := fenceMarker(line); f != "" {
			if fence == "" {
				fence = f
			} else if f == fence {
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		for i := 0; i+4 <= len(line); {
			start := strings.Index(line[i:], "[[")
			if start < 0 {
				break
			}
			start += i
			end := strings.Index(line[start+2:], "]]")
			if end < 0 {
				break
			}
			end += start + 2

			if stem := linkStem(line[start+2 : end]); stem != "" {
				seen[stem] = true
			}
			i = end + 2
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for stem := range seen {
		out = append(out, stem)
	}
	sort.Strings(out)
	return out
}

// linkStem reduces a wiki-link interior to its target stem: the display
// alias and section anchor are dropped, as is any directory prefix.
func linkStem(inner string) string {
	target := inner
	if i := strings.Index(target, "|"); i >= 0 {
		target = target[:i]
	}
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	return strings.ToLower(path.Base(target))
}

// fenceMarker returns "```" or "~~~" when the line opens or closes a
// fenced block, else "".
func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return "```"
	case strings.HasPrefix(trimmed, "~~~"):
		return "~~~"
	default:
		return ""
	}
}
