package rewrite

import (
	"strings"
	"testing"
)

func rewriteString(t *testing.T, input string, frag Fragments) string {
	t.Helper()
	var out strings.Builder
	if err := Rewrite(strings.NewReader(input), &out, frag); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	return out.String()
}

func TestRewriteInjectsHeadFragment(t *testing.T) {
	input := `<html><head><title>x</title></head><body></body></html>`
	got := rewriteString(t, input, Fragments{HeadInjection: []byte(`<link rel="icon">`)})
	if !strings.Contains(got, `<title>x</title><link rel="icon"></head>`) {
		t.Errorf("head injection not appended before </head>: %s", got)
	}
}

func TestRewriteWrapsBodyInDiv(t *testing.T) {
	input := `<html><head></head><body class="rustdoc"><p>hi</p></body></html>`
	got := rewriteString(t, input, Fragments{})

	if !strings.Contains(got, `<body class="host-page">`) {
		t.Errorf("expected rewritten body tag, got: %s", got)
	}
	if !strings.Contains(got, `class="rustdoc `+WrapperExtraClass+`"`) {
		t.Errorf("expected original body class preserved alongside wrapper class, got: %s", got)
	}
	if !strings.Contains(got, `id="`+WrapperID+`"`) {
		t.Errorf("expected wrapper id on the div, got: %s", got)
	}
	if !strings.Contains(got, "<p>hi</p></div></body>") {
		t.Errorf("expected </body> to become </div></body>, got: %s", got)
	}
}

func TestRewriteAddsWrapperClassWhenBodyHasNone(t *testing.T) {
	input := `<html><head></head><body><p>hi</p></body></html>`
	got := rewriteString(t, input, Fragments{})
	if !strings.Contains(got, `class="`+WrapperExtraClass+`"`) {
		t.Errorf("expected a bare wrapper class when body had none, got: %s", got)
	}
}

func TestRewriteInjectsBodyFragment(t *testing.T) {
	input := `<html><head></head><body><p>hi</p></body></html>`
	got := rewriteString(t, input, Fragments{BodyInjection: []byte(`<nav>host nav</nav>`)})
	if !strings.Contains(got, `tabindex="-1"><nav>host nav</nav><p>hi</p>`) {
		t.Errorf("expected body injection right after the wrapper div open tag, got: %s", got)
	}
}

func TestRewriteInjectsVendoredStylesheetBeforeRustdocLink(t *testing.T) {
	input := `<html><head><link rel="stylesheet" href="/rustdoc-static/rustdoc-abc123.css"></head><body></body></html>`
	got := rewriteString(t, input, Fragments{Vendored: []byte(`<link rel="stylesheet" href="/vendored.css">`)})

	vendoredIdx := strings.Index(got, `href="/vendored.css"`)
	rustdocIdx := strings.Index(got, `href="/rustdoc-static/rustdoc-abc123.css"`)
	if vendoredIdx == -1 || rustdocIdx == -1 || vendoredIdx > rustdocIdx {
		t.Errorf("expected vendored stylesheet link before the rustdoc stylesheet link, got: %s", got)
	}
}

func TestRewriteIgnoresNonRustdocStylesheet(t *testing.T) {
	input := `<html><head><link rel="stylesheet" href="/normal.css"></head><body></body></html>`
	got := rewriteString(t, input, Fragments{Vendored: []byte(`<link rel="stylesheet" href="/vendored.css">`)})
	if strings.Contains(got, "/vendored.css") {
		t.Errorf("did not expect vendored injection before a non-rustdoc stylesheet, got: %s", got)
	}
}

func TestRewritePassesThroughUnrelatedMarkup(t *testing.T) {
	input := `<html><head><meta charset="utf-8"></head><body><main><h1>Title</h1></main></body></html>`
	got := rewriteString(t, input, Fragments{})
	if !strings.Contains(got, `<meta charset="utf-8">`) {
		t.Errorf("expected unrelated head markup preserved, got: %s", got)
	}
	if !strings.Contains(got, "<main><h1>Title</h1></main>") {
		t.Errorf("expected unrelated body markup preserved, got: %s", got)
	}
}
