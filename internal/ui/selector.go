package ui

import (
	"fmt"
	"strings"
)

// SelectorKind discriminates SelectorSpec variants.
type SelectorKind string

const (
	KindCSS   SelectorKind = "css"
	KindText  SelectorKind = "text"
	KindXPath SelectorKind = "xpath"
	KindRole  SelectorKind = "role"
)

// Strategy tells a Page how to interpret a compiled query.
type Strategy int

const (
	StrategyInvalid Strategy = iota
	StrategyCSS
	StrategyXPath
)

func (s Strategy) String() string {
	switch s {
	case StrategyCSS:
		return "css"
	case StrategyXPath:
		return "xpath"
	default:
		return "invalid"
	}
}

// SelectorSpec is one way of locating an element.
//
//	css:   Value is a CSS selector
//	text:  Tag (default "*") whose normalized text contains Text
//	xpath: Value is a raw XPath expression
//	role:  element with ARIA role Role whose accessible name contains Name
type SelectorSpec struct {
	Kind  SelectorKind `yaml:"kind"`
	Value string       `yaml:"value,omitempty"`
	Tag   string       `yaml:"tag,omitempty"`
	Text  string       `yaml:"text,omitempty"`
	Role  string       `yaml:"role,omitempty"`
	Name  string       `yaml:"name,omitempty"`
}

// CSS returns a css selector spec.
func CSS(query string) SelectorSpec { return SelectorSpec{Kind: KindCSS, Value: query} }

// Text returns a spec matching tag elements containing text.
func Text(tag, text string) SelectorSpec { return SelectorSpec{Kind: KindText, Tag: tag, Text: text} }

// XPath returns a raw xpath selector spec.
func XPath(expr string) SelectorSpec { return SelectorSpec{Kind: KindXPath, Value: expr} }

// Role returns a spec matching an ARIA role with an accessible name.
func Role(role, name string) SelectorSpec { return SelectorSpec{Kind: KindRole, Role: role, Name: name} }

// Validate reports whether the spec carries the fields its kind needs.
func (s SelectorSpec) Validate() error {
	switch s.Kind {
	case KindCSS, KindXPath:
		if strings.TrimSpace(s.Value) == "" {
			return fmt.Errorf("%s selector requires value", s.Kind)
		}
	case KindText:
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("text selector requires text")
		}
	case KindRole:
		if strings.TrimSpace(s.Role) == "" {
			return fmt.Errorf("role selector requires role")
		}
	default:
		return fmt.Errorf("unknown selector kind %q", s.Kind)
	}
	return nil
}

// Query compiles the spec into a query string and the strategy needed to run
// it. Invalid specs return StrategyInvalid.
func (s SelectorSpec) Query() (string, Strategy) {
	if s.Validate() != nil {
		return "", StrategyInvalid
	}
	switch s.Kind {
	case KindCSS:
		return s.Value, StrategyCSS
	case KindXPath:
		return s.Value, StrategyXPath
	case KindText:
		return textXPath(s.Tag, s.Text), StrategyXPath
	case KindRole:
		return roleXPath(s.Role, s.Name), StrategyXPath
	}
	return "", StrategyInvalid
}

// Expand substitutes {key} placeholders in every text field.
func (s SelectorSpec) Expand(vars map[string]string) SelectorSpec {
	if len(vars) == 0 {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	s.Value = r.Replace(s.Value)
	s.Text = r.Replace(s.Text)
	s.Name = r.Replace(s.Name)
	return s
}

// String renders the spec for logs and StepResult.Attempted.
func (s SelectorSpec) String() string {
	switch s.Kind {
	case KindCSS, KindXPath:
		return string(s.Kind) + "=" + s.Value
	case KindText:
		tag := s.Tag
		if tag == "" {
			tag = "*"
		}
		return fmt.Sprintf("text=%s:%q", tag, s.Text)
	case KindRole:
		return fmt.Sprintf("role=%s:%q", s.Role, s.Name)
	default:
		return "invalid"
	}
}

// implicitRoles maps ARIA roles to the element tests that carry them without
// an explicit role attribute.
var implicitRoles = map[string][]string{
	"button":   {"button", `input[@type="submit"]`, `input[@type="button"]`},
	"link":     {"a[@href]"},
	"radio":    {`input[@type="radio"]`},
	"checkbox": {`input[@type="checkbox"]`},
	"textbox":  {`input[not(@type) or @type="text" or @type="email" or @type="password"]`, "textarea"},
	"heading":  {"h1", "h2", "h3", "h4", "h5", "h6"},
}

func roleXPath(role, name string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	tests := []string{fmt.Sprintf("*[@role=%s]", xpathLiteral(role))}
	tests = append(tests, implicitRoles[role]...)
	for i, test := range tests {
		tests[i] = "//" + test
	}
	union := strings.Join(tests, " | ")
	if strings.TrimSpace(name) == "" {
		return union
	}
	lit := xpathLiteral(name)
	return fmt.Sprintf("(%s)[contains(normalize-space(.), %s) or @aria-label=%s or @value=%s]", union, lit, lit, lit)
}

// textXPath matches tag elements containing text. Without a tag every
// ancestor of the text would match too, so the query keeps only the innermost
// body element holding the whole phrase and never a script or style node.
func textXPath(tag, text string) string {
	has := "contains(normalize-space(.), " + xpathLiteral(text) + ")"
	tag = strings.TrimSpace(tag)
	if tag != "" && tag != "*" {
		return fmt.Sprintf("//%s[%s]", tag, has)
	}
	return fmt.Sprintf("//body//*[not(self::script or self::style or self::noscript)][%s][not(*[%s])]", has, has)
}

// xpathLiteral quotes s as an XPath 1.0 string literal, falling back to
// concat() when s holds both quote characters.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
