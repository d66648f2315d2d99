// Package markdown extracts plain text from markdown note content.
// Embedding quality degrades when markup tokens (fences, link targets,
// heading markers) leak into the embedded text, so everything sent to the
// embedding provider goes through PlainText first.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Service converts markdown source into provider-friendly plain text.
type Service interface {
	// PlainText strips markup from src and returns the readable text.
	PlainText(src string) string
}

type service struct {
	md goldmark.Markdown
}

// NewService creates a markdown service with the default goldmark parser.
func NewService() Service {
	return &service{
		md: goldmark.New(),
	}
}

func (s *service) PlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	source := []byte(src)
	root := s.md.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Block boundaries become single spaces so sentences from
			// adjacent paragraphs do not concatenate.
			if n.Type() == ast.TypeBlock {
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeSpan:
			// Inline code content is kept, the backticks are not.
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := t.(interface{ Lines() *text.Segments }).Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			sb.Write(t.URL(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(sb.String()), " ")
}
