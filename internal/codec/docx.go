package codec

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const documentPart = "word/document.xml"

var errNoDocumentPart = errors.New("word/document.xml not found")

// DocxExtractor converts word/document.xml into an HTML fragment.
// Headings become h1-h6, list paragraphs become ul/li, tables keep their
// row and cell layout, bold and italic runs become strong and em.
type DocxExtractor struct{}

// NewDocxExtractor creates a new DOCX extractor.
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// ToHTML implements Extractor.
func (e *DocxExtractor) ToHTML(ctx context.Context, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	var doc *zip.File
	for _, f := range reader.File {
		if f.Name == documentPart {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errNoDocumentPart
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", documentPart, err)
	}
	defer rc.Close()

	root, err := buildTree(ctx, rc)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
		buf.WriteByte('\n')
	}
	return strings.TrimSpace(buf.String()), nil
}

type paraState struct {
	style string
	list  bool
	node  *html.Node
}

type runState struct {
	bold   bool
	italic bool
	text   strings.Builder
}

// buildTree streams WordprocessingML tokens and builds the matching HTML nodes
// under a synthetic root. Only local names are inspected so both the
// transitional and strict namespaces work.
func buildTree(ctx context.Context, r io.Reader) (*html.Node, error) {
	dec := xml.NewDecoder(r)
	root := element(atom.Div)
	stack := []*html.Node{root}

	var (
		inBody bool
		inText bool
		para   *paraState
		run    *runState
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "body" {
				inBody = true
				continue
			}
			if !inBody {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				stack = pushChild(stack, element(atom.Table))
			case "tr":
				stack = pushChild(stack, element(atom.Tr))
			case "tc":
				stack = pushChild(stack, element(atom.Td))
			case "p":
				para = &paraState{node: element(atom.P)}
			case "pStyle":
				if para != nil {
					para.style = attrVal(t)
				}
			case "numPr":
				if para != nil {
					para.list = true
				}
			case "r":
				run = &runState{}
			case "b":
				if run != nil {
					run.bold = toggleOn(t)
				}
			case "i":
				if run != nil {
					run.italic = toggleOn(t)
				}
			case "t":
				inText = run != nil
			case "tab":
				if run != nil {
					run.text.WriteByte('\t')
				}
			case "br":
				if para != nil {
					flushRun(para, run)
					run = &runState{bold: run != nil && run.bold, italic: run != nil && run.italic}
					para.node.AppendChild(element(atom.Br))
				}
			}

		case xml.CharData:
			if inText {
				run.text.Write(t)
			}

		case xml.EndElement:
			if !inBody {
				continue
			}
			switch t.Name.Local {
			case "body":
				inBody = false
			case "t":
				inText = false
			case "r":
				if para != nil {
					flushRun(para, run)
				}
				run = nil
			case "p":
				if para != nil {
					attachParagraph(stack[len(stack)-1], para)
				}
				para = nil
			case "tc", "tr", "tbl":
				if len(stack) > 1 {
					stack = stack[:len(stack)-1]
				}
			}
		}
	}

	return root, nil
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func pushChild(stack []*html.Node, n *html.Node) []*html.Node {
	stack[len(stack)-1].AppendChild(n)
	return append(stack, n)
}

func attrVal(t xml.StartElement) string {
	for _, a := range t.Attr {
		if a.Name.Local == "val" {
			return a.Value
		}
	}
	return ""
}

// toggleOn reads an OOXML on/off property: absent val means on.
func toggleOn(t xml.StartElement) bool {
	switch strings.ToLower(attrVal(t)) {
	case "0", "false", "off", "none":
		return false
	default:
		return true
	}
}

func flushRun(p *paraState, r *runState) {
	if r == nil || r.text.Len() == 0 {
		return
	}
	n := &html.Node{Type: html.TextNode, Data: r.text.String()}
	if r.italic {
		em := element(atom.Em)
		em.AppendChild(n)
		n = em
	}
	if r.bold {
		strong := element(atom.Strong)
		strong.AppendChild(n)
		n = strong
	}
	p.node.AppendChild(n)
	r.text.Reset()
}

var headingAtoms = map[string]atom.Atom{
	"title":    atom.H1,
	"subtitle": atom.H2,
	"heading1": atom.H1,
	"heading2": atom.H2,
	"heading3": atom.H3,
	"heading4": atom.H4,
	"heading5": atom.H5,
	"heading6": atom.H6,
}

// attachParagraph renames the paragraph node according to its style and
// appends it to parent. Consecutive list paragraphs share one ul.
func attachParagraph(parent *html.Node, p *paraState) {
	if p.node.FirstChild == nil {
		return
	}
	style := strings.ToLower(strings.ReplaceAll(p.style, " ", ""))

	if a, ok := headingAtoms[style]; ok {
		p.node.DataAtom, p.node.Data = a, a.String()
		parent.AppendChild(p.node)
		return
	}

	if p.list || strings.HasPrefix(style, "listparagraph") || strings.HasPrefix(style, "listbullet") || strings.HasPrefix(style, "listnumber") {
		p.node.DataAtom, p.node.Data = atom.Li, atom.Li.String()
		ul := parent.LastChild
		if ul == nil || ul.Type != html.ElementNode || ul.DataAtom != atom.Ul {
			ul = element(atom.Ul)
			parent.AppendChild(ul)
		}
		ul.AppendChild(p.node)
		return
	}

	parent.AppendChild(p.node)
}
