// Package namelist renders namelist templates by substituting placeholder
// tokens with concrete values. Two token conventions circulate in the
// namelists this runner consumes, __UPPER_SNAKE__ and <lower_snake>; they
// differ only in delimiters, so the style is configurable per run.
//
// Substitution is checked in both directions: a token that survives
// rendering and a map key with no token in the template are both
// configuration errors, never silent pass-throughs. The first catches stale
// configuration against a newer template, the second a stale template
// against newer configuration.
package namelist

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	// ErrUnresolvedPlaceholder reports placeholder syntax left in the
	// rendered text.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder in rendered namelist")
	// ErrUnknownPlaceholder reports a substitution key with no
	// corresponding token in the template.
	ErrUnknownPlaceholder = errors.New("placeholder not present in template")
)

// Style defines the delimiters surrounding a placeholder name.
type Style struct {
	Prefix string
	Suffix string
}

// The two conventions found in the wild.
var (
	DoubleUnderscore = Style{Prefix: "__", Suffix: "__"}
	AngleBrackets    = Style{Prefix: "<", Suffix: ">"}
)

// Token returns the literal placeholder token for a name.
func (s Style) Token(name string) string {
	return s.Prefix + name + s.Suffix
}

// pattern matches any placeholder token of this style.
func (s Style) pattern() *regexp.Regexp {
	return regexp.MustCompile(
		regexp.QuoteMeta(s.Prefix) + `[A-Za-z0-9_]+?` + regexp.QuoteMeta(s.Suffix),
	)
}

// StyleByName resolves a configuration value to a Style.
func StyleByName(name string) (Style, error) {
	switch name {
	case "", "double-underscore":
		return DoubleUnderscore, nil
	case "angle-brackets":
		return AngleBrackets, nil
	}
	return Style{}, fmt.Errorf("unknown placeholder style %q", name)
}

// Tmpl is a namelist template with a fixed placeholder style.
type Tmpl struct {
	Style Style
	text  string
}

// ReadTemplateFrom loads the template text.
func (t *Tmpl) ReadTemplateFrom(r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	t.text = string(content)
	return nil
}

// Render substitutes every key of values into the template and returns the
// rendered text. The check is symmetric: every key must have at least one
// token in the template, and no token syntax may survive rendering.
func (t *Tmpl) Render(values map[string]string) (string, error) {
	rendered := t.text
	for name, value := range values {
		token := t.Style.Token(name)
		if !strings.Contains(rendered, token) {
			return "", fmt.Errorf("%w: %s", ErrUnknownPlaceholder, token)
		}
		rendered = strings.ReplaceAll(rendered, token, value)
	}

	if leftover := t.Style.pattern().FindString(rendered); leftover != "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, leftover)
	}

	return rendered, nil
}

// RenderTo renders the template into w.
func (t *Tmpl) RenderTo(values map[string]string, w io.Writer) error {
	rendered, err := t.Render(values)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, rendered)
	return err
}
