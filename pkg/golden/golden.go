// Package golden reads compiler scenarios written as Markdown. Each scenario starts at a
// "Test: <name>" heading and holds one pascal fence followed by expectation fences:
//
//	c       emitted statements that must appear in this order
//	errors  the exact error diagnostics, one "line:col: message" per line
//	flags   -W/-F switches applied before compiling
package golden

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type FenceType string

const (
	FenceSource FenceType = "pascal"
	FenceC      FenceType = "c"
	FenceErrors FenceType = "errors"
	FenceFlags  FenceType = "flags"
)

type Case struct {
	Name   string
	Line   int
	Source string
	C      []string
	Errors []string
	Flags  string
	// HasErrors distinguishes an empty errors fence (expect none) from no fence at all.
	HasErrors bool
}

func Load(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("golden: %w", err)
	}
	cases, err := Extract(data)
	if err != nil {
		return nil, fmt.Errorf("golden: %s: %w", path, err)
	}
	return cases, nil
}

// Extract walks a Markdown document and returns its scenarios in order.
func Extract(source []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []Case
	var cur *Case
	flush := func() error {
		if cur == nil {
			return nil
		}
		if cur.Source == "" {
			return fmt.Errorf("line %d: test '%s' has no pascal fence", cur.Line, cur.Name)
		}
		if cur.C == nil && !cur.HasErrors {
			return fmt.Errorf("line %d: test '%s' has no c or errors fence", cur.Line, cur.Name)
		}
		cases = append(cases, *cur)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			title := headingText(n, source)
			if !strings.HasPrefix(title, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			cur = &Case{Name: strings.TrimPrefix(title, "Test: "), Line: lineOf(n, source)}

		case *ast.FencedCodeBlock:
			lang := FenceType(n.Language(source))
			line := lineOf(n, source)
			if lang == "" {
				return ast.WalkContinue, nil
			}
			if cur == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of a test", line, lang)
			}
			body := fenceText(n, source)
			switch lang {
			case FenceSource:
				if cur.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple pascal fences in test '%s'", line, cur.Name)
				}
				cur.Source = strings.TrimRight(body, "\n")
			case FenceC:
				if cur.C == nil {
					cur.C = []string{}
				}
				cur.C = append(cur.C, nonEmptyLines(body)...)
			case FenceErrors:
				cur.Errors = append(cur.Errors, nonEmptyLines(body)...)
				cur.HasErrors = true
			case FenceFlags:
				cur.Flags = strings.TrimSpace(cur.Flags + " " + strings.Join(strings.Fields(body), " "))
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, cur.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func headingText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceText(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// lineOf is the 1-based line of the node's first content line, or of the node itself.
func lineOf(node ast.Node, source []byte) int {
	offset := -1
	if lines := node.Lines(); lines != nil && lines.Len() > 0 {
		offset = lines.At(0).Start
	}
	if offset < 0 {
		return 0
	}
	return bytes.Count(source[:offset], []byte("\n")) + 1
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// MatchInOrder reports the first wanted line that does not occur in got after the
// previous match. Both sides are compared with surrounding whitespace removed.
func MatchInOrder(want, got []string) (missing string, ok bool) {
	i := 0
	for _, w := range want {
		w = strings.TrimSpace(w)
		for i < len(got) && strings.TrimSpace(got[i]) != w {
			i++
		}
		if i == len(got) {
			return w, false
		}
		i++
	}
	return "", true
}
