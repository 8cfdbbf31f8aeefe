// Package richtext holds the canonical document tree and its plain-text
// form. The tree is derived deterministically from replicated state by
// Project, serialized to markdown for storage and search, and parsed back
// from markdown when a document is seeded from legacy text.
package richtext

// BlockType identifies a canonical block node.
type BlockType string

const (
	Paragraph   BlockType = "paragraph"
	Heading     BlockType = "heading"
	CodeBlock   BlockType = "code_block"
	BulletItem  BlockType = "bullet_item"
	OrderedItem BlockType = "ordered_item"
	Quote       BlockType = "quote"
)

// Block is one canonical block node.
type Block struct {
	Type BlockType

	// Level is the heading level, 1 through 6. Only set for headings.
	Level int

	// Language is the fence info string. Only set for code blocks.
	Language string

	Text string
}

// Document is the canonical flattened document tree.
type Document struct {
	Blocks []Block
}

// Title returns the text of the first heading, or an empty string when the
// document has none.
func (d *Document) Title() string {
	for _, b := range d.Blocks {
		if b.Type == Heading {
			return b.Text
		}
	}
	return ""
}
