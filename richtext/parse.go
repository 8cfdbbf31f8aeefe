package richtext

import (
	"regexp"
	"strings"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})(?: (.*))?$`)
	orderedPattern = regexp.MustCompile(`^\d+\.(?: (.*))?$`)
)

// Parse builds a canonical tree from markdown text. It understands the
// subset Markdown emits: headings, paragraphs, fenced code blocks, bullet
// and ordered list items, and block quotes. Parsing the serialization of a
// tree reproduces an equivalent tree.
func Parse(text string) *Document {
	doc := &Document{}
	lines := strings.Split(text, "\n")

	var paragraph []string
	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		doc.Blocks = append(doc.Blocks, Block{
			Type: Paragraph,
			Text: unescapeText(strings.Join(paragraph, " ")),
		})
		paragraph = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimRight(line, " \t")

		if trimmed == "" {
			flushParagraph()
			continue
		}

		if n := leadingBackticks(trimmed); n >= 3 {
			flushParagraph()
			lang := trimmed[n:]
			var body []string
			for i++; i < len(lines); i++ {
				// A fence at least as long as the opener, and nothing
				// else on the line, closes the block.
				closer := strings.TrimRight(lines[i], " \t")
				if m := leadingBackticks(closer); m >= n && m == len(closer) {
					break
				}
				body = append(body, lines[i])
			}
			doc.Blocks = append(doc.Blocks, Block{
				Type:     CodeBlock,
				Language: lang,
				Text:     strings.Join(body, "\n"),
			})
			continue
		}

		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			flushParagraph()
			doc.Blocks = append(doc.Blocks, Block{
				Type:  Heading,
				Level: len(m[1]),
				Text:  unescapeText(m[2]),
			})
			continue
		}

		if trimmed == ">" || strings.HasPrefix(trimmed, "> ") {
			flushParagraph()
			doc.Blocks = append(doc.Blocks, Block{
				Type: Quote,
				Text: unescapeText(strings.TrimPrefix(strings.TrimPrefix(trimmed, ">"), " ")),
			})
			continue
		}

		if trimmed == "-" || trimmed == "*" ||
			strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			flushParagraph()
			text := ""
			if len(trimmed) > 2 {
				text = trimmed[2:]
			}
			doc.Blocks = append(doc.Blocks, Block{
				Type: BulletItem,
				Text: unescapeText(text),
			})
			continue
		}

		if m := orderedPattern.FindStringSubmatch(trimmed); m != nil {
			flushParagraph()
			doc.Blocks = append(doc.Blocks, Block{
				Type: OrderedItem,
				Text: unescapeText(m[1]),
			})
			continue
		}

		paragraph = append(paragraph, trimmed)
	}
	flushParagraph()

	return doc
}

func leadingBackticks(line string) int {
	n := 0
	for n < len(line) && line[n] == '`' {
		n++
	}
	return n
}
