package collector

import (
	"fmt"
	"strings"
)

// Element is the collector's view of a form control on the hosting
// page: enough structure to name the field it belongs to and to read
// its content back after a paste settles.
type Element struct {
	Tag        string
	ID         string
	Classes    []string
	Attributes map[string]string

	// Value reads the element's current content. Nil means the content
	// is not readable.
	Value func() string
}

func (e Element) hasClass(name string) bool {
	for _, c := range e.Classes {
		if c == name {
			return true
		}
	}
	return false
}

func (e Element) attr(name string) string {
	return e.Attributes[name]
}

// Rule names a field when its predicate matches.
type Rule struct {
	Name  string
	Match func(Element) bool
}

// Matcher resolves elements to stable field names. Rules are tried in
// order and the first match wins, so specific selectors must come
// before generic ones.
type Matcher struct {
	rules []Rule
}

func NewMatcher(rules []Rule) *Matcher {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Matcher{rules: rules}
}

// DefaultRules covers the survey platform's text controls, most
// specific first, ending with broad tag matches.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "essay-response",
			Match: func(e Element) bool {
				return e.Tag == "textarea" && e.hasClass("TextEntryBox")
			},
		},
		{
			Name: "labeled-input",
			Match: func(e Element) bool {
				return e.attr("aria-label") != "" &&
					(e.Tag == "textarea" || e.Tag == "input")
			},
		},
		{
			Name: "text-input",
			Match: func(e Element) bool {
				return e.Tag == "input" && e.attr("type") == "text"
			},
		},
		{
			Name: "textarea",
			Match: func(e Element) bool {
				return e.Tag == "textarea"
			},
		},
		{
			Name: "editable-region",
			Match: func(e Element) bool {
				return e.attr("contenteditable") == "true"
			},
		},
	}
}

// FieldName resolves an element. Unmatched elements get a catch-all
// name derived from their identity so no paste is ever dropped.
func (m *Matcher) FieldName(e Element) string {
	for _, r := range m.rules {
		if r.Match(e) {
			if e.ID != "" {
				return r.Name + ":" + e.ID
			}
			return r.Name
		}
	}
	if e.ID != "" {
		return "field:" + e.ID
	}
	return fmt.Sprintf("field:%s", strings.ToLower(e.Tag))
}
