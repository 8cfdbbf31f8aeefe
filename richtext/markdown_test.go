package richtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownEmptyDocument(t *testing.T) {
	doc := &Document{}
	assert.Equal(t, "", doc.Markdown())
}

func TestMarkdownRendering(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: Heading, Level: 2, Text: "Release notes"},
		{Type: Paragraph, Text: "All changes shipped this week."},
		{Type: BulletItem, Text: "faster sync"},
		{Type: OrderedItem, Text: "first"},
		{Type: OrderedItem, Text: "second"},
		{Type: Quote, Text: "ship it"},
		{Type: CodeBlock, Language: "go", Text: "fmt.Println(\"hi\")"},
	}}

	expected := "## Release notes\n\n" +
		"All changes shipped this week.\n\n" +
		"- faster sync\n\n" +
		"1. first\n\n" +
		"2. second\n\n" +
		"> ship it\n\n" +
		"```go\nfmt.Println(\"hi\")\n```\n"
	assert.Equal(t, expected, doc.Markdown())
}

func TestMarkdownOrderedItemsNumberedPerRun(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: OrderedItem, Text: "one"},
		{Type: OrderedItem, Text: "two"},
		{Type: Paragraph, Text: "interlude"},
		{Type: OrderedItem, Text: "restart"},
	}}

	text := doc.Markdown()
	assert.Contains(t, text, "1. one")
	assert.Contains(t, text, "2. two")
	assert.Contains(t, text, "1. restart")
}

func TestMarkdownEscapesMetacharacters(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: Paragraph, Text: "# not a heading"},
		{Type: Paragraph, Text: "1. not a list"},
		{Type: Paragraph, Text: "uses `code` and *emphasis*"},
	}}

	parsed := Parse(doc.Markdown())
	require.Len(t, parsed.Blocks, 3)
	for i, b := range parsed.Blocks {
		assert.Equal(t, Paragraph, b.Type)
		assert.Equal(t, doc.Blocks[i].Text, b.Text)
	}
}

func TestMarkdownNewlinesCollapseToSpaces(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: Paragraph, Text: "line one\nline two"},
	}}

	parsed := Parse(doc.Markdown())
	require.Len(t, parsed.Blocks, 1)
	assert.Equal(t, "line one line two", parsed.Blocks[0].Text)
}

func TestParseMarkdownRoundTrip(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: Heading, Level: 1, Text: "Title"},
		{Type: Paragraph, Text: "Intro text with [brackets] and _underscores_."},
		{Type: Heading, Level: 3, Text: "Details"},
		{Type: BulletItem, Text: "alpha"},
		{Type: BulletItem, Text: "beta"},
		{Type: CodeBlock, Language: "sh", Text: "echo one\necho two"},
		{Type: Quote, Text: "quoted"},
	}}

	parsed := Parse(doc.Markdown())
	assert.Equal(t, doc.Blocks, parsed.Blocks)

	// The serialization is a fixpoint.
	assert.Equal(t, doc.Markdown(), parsed.Markdown())
}

func TestParseJoinsParagraphContinuations(t *testing.T) {
	parsed := Parse("first line\nsecond line\n\nnext paragraph\n")
	require.Len(t, parsed.Blocks, 2)
	assert.Equal(t, "first line second line", parsed.Blocks[0].Text)
	assert.Equal(t, "next paragraph", parsed.Blocks[1].Text)
}

func TestParseCodeFenceKeepsRawBody(t *testing.T) {
	parsed := Parse("```python\n# a comment, not a heading\n\nx = 1\n```\n")
	require.Len(t, parsed.Blocks, 1)
	assert.Equal(t, CodeBlock, parsed.Blocks[0].Type)
	assert.Equal(t, "python", parsed.Blocks[0].Language)
	assert.Equal(t, "# a comment, not a heading\n\nx = 1", parsed.Blocks[0].Text)
}

func TestMarkdownCodeFenceContainingBackticks(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: CodeBlock, Language: "md", Text: "```"},
		{Type: Paragraph, Text: "after"},
	}}

	text := doc.Markdown()
	assert.Contains(t, text, "````md\n```\n````")

	parsed := Parse(text)
	assert.Equal(t, doc.Blocks, parsed.Blocks)
}

func TestMarkdownCodeFenceGrowsPastLongestRun(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: CodeBlock, Language: "", Text: "````\nnested example\n````"},
	}}

	parsed := Parse(doc.Markdown())
	assert.Equal(t, doc.Blocks, parsed.Blocks)
}

func TestParseLongFenceClosedByLongerFence(t *testing.T) {
	parsed := Parse("````\n```\ninner\n`````\n")
	require.Len(t, parsed.Blocks, 1)
	assert.Equal(t, CodeBlock, parsed.Blocks[0].Type)
	assert.Equal(t, "```\ninner", parsed.Blocks[0].Text)
}

func TestMarkdownEmptyBlocksRoundTrip(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: Heading, Level: 1, Text: ""},
		{Type: Quote, Text: ""},
		{Type: BulletItem, Text: ""},
		{Type: OrderedItem, Text: ""},
		{Type: CodeBlock, Language: "", Text: ""},
	}}

	parsed := Parse(doc.Markdown())
	assert.Equal(t, doc.Blocks, parsed.Blocks)
}

func TestTitle(t *testing.T) {
	doc := &Document{Blocks: []Block{
		{Type: Paragraph, Text: "preamble"},
		{Type: Heading, Level: 1, Text: "The Title"},
		{Type: Heading, Level: 2, Text: "Not the title"},
	}}
	assert.Equal(t, "The Title", doc.Title())

	assert.Equal(t, "", (&Document{}).Title())
}
