package rewrite

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fragments are the host-site additions injected into the upstream
// document (§4.8). HeadInjection is appended at the end of <head>;
// BodyInjection is prepended just inside the new wrapper div; Vendored is
// the stylesheet <link> emitted before each rustdoc stylesheet link.
type Fragments struct {
	HeadInjection []byte
	BodyInjection []byte
	Vendored      []byte
}

// WrapperExtraClass and WrapperID name the element the original <body> becomes
// (§4.8b).
const (
	WrapperID        = "rustdoc_body_wrapper"
	WrapperExtraClass = "container-rustdoc"
)

// rustdocStylesheetMarker is the href fragment identifying a rustdoc
// stylesheet link (§4.8 element handlers).
const rustdocStylesheetMarker = "rustdoc-"

// Rewrite streams tokens from r to w, applying the three element handlers
// (head append, body->div rewrite, stylesheet injection before every
// rustdoc stylesheet link). Rewrite keeps no byte count of its own: the
// memory cap is enforced only by w's accounting when w is a *chanWriter;
// with any other io.Writer no cap applies.
func Rewrite(r io.Reader, w io.Writer, frag Fragments) error {
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err == io.EOF {
				return nil
			}
			return z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			if err := handleStartTag(z, w, frag, tt == html.SelfClosingTagToken); err != nil {
				return err
			}
		case html.EndTagToken:
			if err := handleEndTag(z, w, frag); err != nil {
				return err
			}
		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}

func handleStartTag(z *html.Tokenizer, w io.Writer, frag Fragments, selfClosing bool) error {
	tok := z.Token()
	switch tok.DataAtom {
	case atom.Body:
		return writeBodyOpen(w, tok, frag)
	case atom.Link:
		if isRustdocStylesheet(tok) && len(frag.Vendored) > 0 {
			if _, err := w.Write(frag.Vendored); err != nil {
				return err
			}
		}
		_, err := w.Write(z.Raw())
		return err
	default:
		_, err := w.Write(z.Raw())
		return err
	}
}

func handleEndTag(z *html.Tokenizer, w io.Writer, frag Fragments) error {
	tok := z.Token()
	switch tok.DataAtom {
	case atom.Head:
		if len(frag.HeadInjection) > 0 {
			if _, err := w.Write(frag.HeadInjection); err != nil {
				return err
			}
		}
		_, err := w.Write(z.Raw())
		return err
	case atom.Body:
		// The original </body> becomes </div></body> (§4.8b).
		if _, err := io.WriteString(w, "</div>"); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body>")
		return err
	default:
		_, err := w.Write(z.Raw())
		return err
	}
}

// writeBodyOpen emits `<body class="host-page">` followed by the rewritten
// wrapper div carrying the original body's attributes plus the added
// wrapper class and id, followed by the body-injection fragment (§4.8b).
func writeBodyOpen(w io.Writer, tok html.Token, frag Fragments) error {
	if _, err := io.WriteString(w, `<body class="host-page">`); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("<div")
	classWritten := false
	for _, attr := range tok.Attr {
		if attr.Key == "class" {
			buf.WriteString(` class="`)
			buf.WriteString(html.EscapeString(attr.Val))
			buf.WriteString(" " + WrapperExtraClass + `"`)
			classWritten = true
			continue
		}
		buf.WriteString(" ")
		buf.WriteString(attr.Key)
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(attr.Val))
		buf.WriteString(`"`)
	}
	if !classWritten {
		buf.WriteString(` class="` + WrapperExtraClass + `"`)
	}
	buf.WriteString(` id="` + WrapperID + `" tabindex="-1">`)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	if len(frag.BodyInjection) > 0 {
		if _, err := w.Write(frag.BodyInjection); err != nil {
			return err
		}
	}
	return nil
}

func isRustdocStylesheet(tok html.Token) bool {
	var rel, href string
	for _, attr := range tok.Attr {
		switch attr.Key {
		case "rel":
			rel = attr.Val
		case "href":
			href = attr.Val
		}
	}
	return strings.EqualFold(rel, "stylesheet") && strings.Contains(href, rustdocStylesheetMarker)
}
