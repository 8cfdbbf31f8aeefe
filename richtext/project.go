package richtext

import (
	"fmt"

	"github.com/jorilallo/outline/crdt"
)

// Project derives the canonical tree from replicated state. It is a pure
// function of the state's content: two states that merged the same deltas in
// any order project to the same tree.
func Project(state *crdt.Document) (*Document, error) {
	if state == nil {
		return nil, ProjectionError{Reason: "nil state"}
	}

	views := state.Blocks()
	doc := &Document{Blocks: make([]Block, 0, len(views))}

	for _, view := range views {
		block := Block{Text: view.Text}

		switch view.Type {
		case crdt.BlockParagraph:
			block.Type = Paragraph
		case crdt.BlockHeading:
			block.Type = Heading
			level, err := headingLevel(view.Attrs)
			if err != nil {
				return nil, err
			}
			block.Level = level
		case crdt.BlockCode:
			block.Type = CodeBlock
			lang, err := codeLanguage(view.Attrs)
			if err != nil {
				return nil, err
			}
			block.Language = lang
		case crdt.BlockBulletItem:
			block.Type = BulletItem
		case crdt.BlockOrderedItem:
			block.Type = OrderedItem
		case crdt.BlockQuote:
			block.Type = Quote
		default:
			return nil, ProjectionError{Reason: fmt.Sprintf("unknown block type %q", view.Type)}
		}

		doc.Blocks = append(doc.Blocks, block)
	}

	return doc, nil
}

func headingLevel(attrs map[string]interface{}) (int, error) {
	raw, ok := attrs["level"]
	if !ok {
		return 1, nil
	}

	var level int
	switch v := raw.(type) {
	case float64:
		level = int(v)
	case int:
		level = v
	default:
		return 0, ProjectionError{Reason: fmt.Sprintf("heading level is %T, not a number", raw)}
	}

	// Out-of-range levels are clamped rather than rejected; the value is
	// structurally sound and the projection must stay total.
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return level, nil
}

func codeLanguage(attrs map[string]interface{}) (string, error) {
	raw, ok := attrs["lang"]
	if !ok {
		return "", nil
	}
	lang, ok := raw.(string)
	if !ok {
		return "", ProjectionError{Reason: fmt.Sprintf("code language is %T, not a string", raw)}
	}
	return lang, nil
}
