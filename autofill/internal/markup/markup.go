// Package markup prepares page HTML for the inference service: sanitised,
// trimmed to form-relevant subtrees, and capped in size. Detect payloads carry
// the structure the service needs, not the whole page.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// maxPayload caps the markup sent with a detect request.
const maxPayload = 256 << 10

// Builder produces detect payloads and refine context from raw page HTML.
type Builder struct {
	policy      *bluemonday.Policy
	mdConverter *converter.Converter
}

// New creates a Builder with the sanitisation policy used for all payloads:
// structural and form elements with their identifying attributes, no scripts,
// no styles, no event handlers.
func New() *Builder {
	elements := []string{"html", "body", "form", "fieldset", "legend", "label",
		"input", "textarea", "select", "option", "button",
		"div", "section", "main", "article", "span", "p",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table",
		"thead", "tbody", "tr", "td", "th"}

	p := bluemonday.NewPolicy()
	p.AllowElements(elements...)
	// bluemonday drops an element once every attribute on it is stripped;
	// structural tags, <form> above all, must survive bare.
	p.AllowNoAttrs().OnElements(elements...)
	p.AllowAttrs("action", "method").OnElements("form")
	p.AllowAttrs("id", "name", "type", "placeholder", "autocomplete",
		"for", "value", "role", "aria-label", "aria-labelledby",
		"required", "maxlength", "data-autofill-id").Globally()

	return &Builder{
		policy: p,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Detect returns the sanitised, form-trimmed markup for a detect request.
// When the page contains form or editable subtrees, only those are kept;
// otherwise the sanitised body is used as-is. Output is capped at 256KB.
func (b *Builder) Detect(raw []byte) (string, error) {
	clean := b.policy.SanitizeBytes(raw)

	trimmed, err := trimToForms(clean)
	if err != nil {
		return "", fmt.Errorf("markup: trim: %w", err)
	}
	if trimmed == "" {
		trimmed = string(clean)
	}
	if len(trimmed) > maxPayload {
		trimmed = trimmed[:maxPayload]
	}
	return trimmed, nil
}

// Context converts the sanitised HTML surrounding a field into markdown for
// refine requests. Empty input or a failed conversion yields "".
func (b *Builder) Context(raw []byte, sourceURL string) string {
	if len(raw) == 0 {
		return ""
	}
	clean := b.policy.SanitizeBytes(raw)
	md, err := b.mdConverter.ConvertString(string(clean), converter.WithDomain(sourceURL))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(md)
}

// trimToForms extracts the outer HTML of every form-bearing subtree. A subtree
// qualifies when rooted at <form> or when it directly contains input/textarea
// elements outside any form.
func trimToForms(clean []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(clean))
	if err != nil {
		return "", err
	}

	var forms []*html.Node
	seen := map[*html.Node]bool{}
	keep := func(n *html.Node) {
		if !seen[n] {
			seen[n] = true
			forms = append(forms, n)
		}
	}
	var walk func(n *html.Node, insideForm bool)
	walk = func(n *html.Node, insideForm bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				keep(n)
				insideForm = true
			case "input", "textarea", "select":
				if !insideForm && n.Parent != nil {
					// Orphan field: keep its parent for label context.
					// A parent at body or above would drag the whole page
					// back in; the field alone has to do then.
					anchor := n.Parent
					if anchor.Data == "body" || anchor.Data == "html" {
						anchor = n
					}
					keep(anchor)
					insideForm = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, insideForm)
		}
	}
	walk(doc, false)

	if len(forms) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for _, f := range forms {
		if err := html.Render(&buf, f); err != nil {
			return "", err
		}
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}
