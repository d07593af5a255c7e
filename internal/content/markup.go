package content

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const blockSeparator = "<br/>"

// Serialize joins the blocks into the markup stored by the content API.
func Serialize(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case KindImage:
			parts = append(parts, imageTag(b.Content))
		default:
			parts = append(parts, b.Content)
		}
	}
	return strings.Join(parts, blockSeparator)
}

func imageTag(src string) string {
	return fmt.Sprintf(`<img src="%s" alt="Image" />`, html.EscapeString(src))
}

// Parse splits stored markup back into blocks. Top-level <br> elements separate
// blocks, top-level <img> elements become image blocks and every other run of
// nodes becomes one text block. Block ids are freshly generated.
func Parse(markup string) ([]Block, error) {
	blocks := make([]Block, 0)
	if strings.TrimSpace(markup) == "" {
		return blocks, nil
	}

	body := &xhtml.Node{Type: xhtml.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := xhtml.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse statement markup: %w", err)
	}

	var run bytes.Buffer
	flush := func() {
		text := strings.TrimSpace(run.String())
		run.Reset()
		if text != "" {
			blocks = append(blocks, newBlock(KindText, text))
		}
	}

	for _, n := range nodes {
		if n.Type == xhtml.ElementNode {
			switch n.DataAtom {
			case atom.Br:
				flush()
				continue
			case atom.Img:
				flush()
				if src := attr(n, "src"); src != "" {
					blocks = append(blocks, newBlock(KindImage, src))
				}
				continue
			}
		}
		if err := xhtml.Render(&run, n); err != nil {
			return nil, fmt.Errorf("render statement node: %w", err)
		}
	}
	flush()
	return blocks, nil
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
