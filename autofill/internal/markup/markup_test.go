package markup

import (
	"strings"
	"testing"
)

func TestDetect_StripsScripts(t *testing.T) {
	b := New()
	raw := []byte(`<html><body>
		<script>alert("x")</script>
		<form><input type="text" name="email" id="email"></form>
	</body></html>`)

	got, err := b.Detect(raw)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Errorf("Detect: script survived sanitisation: %q", got)
	}
	if !strings.Contains(got, `name="email"`) {
		t.Errorf("Detect: field attributes lost: %q", got)
	}
}

func TestDetect_TrimsToForms(t *testing.T) {
	b := New()
	raw := []byte(`<html><body>
		<div id="nav"><p>navigation chrome</p></div>
		<form><label for="n">Name</label><input id="n" name="name"></form>
		<div id="footer"><p>footer text</p></div>
	</body></html>`)

	got, err := b.Detect(raw)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !strings.Contains(got, "<form>") {
		t.Errorf("Detect: form subtree missing: %q", got)
	}
	if strings.Contains(got, "navigation chrome") || strings.Contains(got, "footer text") {
		t.Errorf("Detect: non-form chrome not trimmed: %q", got)
	}
}

func TestDetect_BareFormSurvivesSanitisation(t *testing.T) {
	b := New()
	// No attributes anywhere on the form element itself.
	raw := []byte(`<html><body><form><input name="email"></form></body></html>`)

	got, err := b.Detect(raw)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !strings.Contains(got, "<form") {
		t.Errorf("Detect: bare form dropped by sanitisation: %q", got)
	}
}

func TestDetect_OrphanUnderBodyStillTrims(t *testing.T) {
	b := New()
	raw := []byte(`<html><body>
		<div id="nav"><p>navigation chrome</p></div>
		<input id="q" name="q">
	</body></html>`)

	got, err := b.Detect(raw)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !strings.Contains(got, `id="q"`) {
		t.Errorf("Detect: orphan field lost: %q", got)
	}
	if strings.Contains(got, "navigation chrome") {
		t.Errorf("Detect: field at body level dragged the page back in: %q", got)
	}
}

func TestDetect_OrphanFieldKeepsParent(t *testing.T) {
	b := New()
	raw := []byte(`<html><body>
		<div><label for="q">Query</label><input id="q" name="q"></div>
	</body></html>`)

	got, err := b.Detect(raw)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !strings.Contains(got, `id="q"`) || !strings.Contains(got, "Query") {
		t.Errorf("Detect: orphan field context lost: %q", got)
	}
}

func TestDetect_NoFieldsFallsBack(t *testing.T) {
	b := New()
	raw := []byte(`<html><body><p>plain page</p></body></html>`)

	got, err := b.Detect(raw)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !strings.Contains(got, "plain page") {
		t.Errorf("Detect: fieldless page should keep sanitised body: %q", got)
	}
}

func TestContext_Markdown(t *testing.T) {
	b := New()
	raw := []byte(`<div><h2>Shipping address</h2><p>Where we deliver.</p></div>`)

	got := b.Context(raw, "https://example.com")
	if !strings.Contains(got, "Shipping address") {
		t.Errorf("Context: heading text lost: %q", got)
	}
	if strings.Contains(got, "<h2>") {
		t.Errorf("Context: HTML tags survived conversion: %q", got)
	}
}

func TestContext_Empty(t *testing.T) {
	b := New()
	if got := b.Context(nil, ""); got != "" {
		t.Errorf("Context(nil): got %q, want empty", got)
	}
}
