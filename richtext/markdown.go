package richtext

import (
	"fmt"
	"strings"
)

// Markdown serializes the canonical tree into its stable text form. The
// serialization is deterministic and round-trips through Parse up to
// insignificant whitespace.
func (d *Document) Markdown() string {
	if len(d.Blocks) == 0 {
		return ""
	}

	var out []string
	ordinal := 0
	for _, b := range d.Blocks {
		if b.Type == OrderedItem {
			ordinal++
		} else {
			ordinal = 0
		}

		switch b.Type {
		case Heading:
			level := b.Level
			if level < 1 {
				level = 1
			}
			out = append(out, strings.Repeat("#", level)+" "+escapeText(b.Text))
		case CodeBlock:
			fence := codeFence(b.Text)
			out = append(out, fence+b.Language+"\n"+fenceBody(b.Text)+fence)
		case BulletItem:
			out = append(out, "- "+escapeText(b.Text))
		case OrderedItem:
			out = append(out, fmt.Sprintf("%d. %s", ordinal, escapeText(b.Text)))
		case Quote:
			out = append(out, "> "+escapeText(b.Text))
		default:
			out = append(out, escapeText(b.Text))
		}
	}

	return strings.Join(out, "\n\n") + "\n"
}

// codeFence returns a backtick fence one longer than the longest backtick
// run inside the body, so the body can never close the fence early.
func codeFence(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r != '`' {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	n := 3
	if longest >= 3 {
		n = longest + 1
	}
	return strings.Repeat("`", n)
}

func fenceBody(text string) string {
	if text == "" {
		return ""
	}
	return text + "\n"
}

// escapeText renders block text as a single markdown-inert line. Markdown
// metacharacters are backslash-escaped and raw newlines collapse to spaces;
// Parse reverses the escaping.
func escapeText(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sb strings.Builder
	sb.Grow(len(text))
	for i, r := range text {
		switch r {
		case '\\', '`', '*', '_', '[', ']':
			sb.WriteByte('\\')
		case '#', '>', '-', '+':
			if i == 0 {
				sb.WriteByte('\\')
			}
		case '.':
			// A leading "1. " would parse as an ordered item.
			if leadingOrdinal(text, i) {
				sb.WriteByte('\\')
			}
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// leadingOrdinal reports whether the dot at byte offset i terminates a
// digit-only prefix of the text.
func leadingOrdinal(text string, i int) bool {
	if i == 0 {
		return false
	}
	for _, r := range text[:i] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// unescapeText reverses escapeText.
func unescapeText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	escaped := false
	for _, r := range text {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	if escaped {
		sb.WriteByte('\\')
	}
	return sb.String()
}
