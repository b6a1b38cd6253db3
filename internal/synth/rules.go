// Package synth turns scraped elements into ranked voice commands. Role
// inference is a fixed-order rule cascade (first match wins), kept as data so
// rules can be tested and extended without touching the evaluator.
package synth

import (
	"strings"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// RoleRule is one (predicate, role) pair in the cascade
type RoleRule struct {
	Name   string
	Role   types.Role
	Weight float64 // rule-match strength, feeds command confidence
	Match  func(a types.ElementAttrs) bool
}

// roleRules is evaluated top-down; order is the priority.
var roleRules = []RoleRule{
	{
		Name: "editable", Role: types.RoleInput, Weight: 0.95,
		Match: func(a types.ElementAttrs) bool { return a.Flags.Editable },
	},
	{
		Name: "radio", Role: types.RoleRadio, Weight: 0.9,
		Match: func(a types.ElementAttrs) bool {
			return a.Flags.Checkable && classContains(a, "radio")
		},
	},
	{
		Name: "checkbox", Role: types.RoleCheckbox, Weight: 0.9,
		Match: func(a types.ElementAttrs) bool { return a.Flags.Checkable },
	},
	{
		Name: "dropdown", Role: types.RoleDropdown, Weight: 0.85,
		Match: func(a types.ElementAttrs) bool {
			return classContains(a, "spinner", "dropdown", "select", "combo")
		},
	},
	{
		Name: "link", Role: types.RoleLink, Weight: 0.8,
		Match: func(a types.ElementAttrs) bool {
			return classContains(a, "link") || (a.Flags.Clickable && idContains(a, "link"))
		},
	},
	{
		Name: "button", Role: types.RoleButton, Weight: 0.85,
		Match: func(a types.ElementAttrs) bool {
			return a.Flags.Clickable && (classContains(a, "button", "imagebutton", "fab") || a.Text != "" || a.Label != "")
		},
	},
	{
		Name: "clickable", Role: types.RoleButton, Weight: 0.7,
		Match: func(a types.ElementAttrs) bool { return a.Flags.Clickable },
	},
	{
		Name: "scroll-container", Role: types.RoleContainer, Weight: 0.75,
		Match: func(a types.ElementAttrs) bool { return a.Flags.Scrollable },
	},
	{
		Name: "static-label", Role: types.RoleLabel, Weight: 0.8,
		Match: func(a types.ElementAttrs) bool { return a.Text != "" },
	},
	{
		Name: "layout", Role: types.RoleContainer, Weight: 0.6,
		Match: func(a types.ElementAttrs) bool {
			return classContains(a, "layout", "viewgroup", "recycler", "listview", "scrollview")
		},
	},
}

// InferRole runs the cascade and returns the role plus the matched rule's
// weight. Unmatched elements are unknown with a floor weight.
func InferRole(a types.ElementAttrs) (types.Role, float64) {
	for _, r := range roleRules {
		if r.Match(a) {
			return r.Role, r.Weight
		}
	}
	return types.RoleUnknown, 0.3
}

// InferAction picks the action type from capability flags with fixed
// precedence: editable > checkable > clickable > scrollable > focusable.
// Dropdowns map to select, checked checkables to uncheck.
func InferAction(a types.ElementAttrs, role types.Role) (types.Action, bool) {
	switch {
	case a.Flags.Editable:
		return types.ActionType, true
	case a.Flags.Checkable:
		if a.Flags.Checked {
			return types.ActionUncheck, true
		}
		return types.ActionCheck, true
	case role == types.RoleDropdown && a.Flags.Clickable:
		return types.ActionSelect, true
	case a.Flags.Clickable:
		return types.ActionClick, true
	case a.Flags.LongClickable:
		return types.ActionLongClick, true
	case a.Flags.Scrollable:
		return types.ActionScroll, true
	case a.Flags.Focusable:
		return types.ActionFocus, true
	}
	return "", false
}

// inputTypeKeywords maps resource-id/label fragments to input types,
// checked in order (password before generic text fields, etc).
var inputTypeKeywords = []struct {
	keyword string
	input   string
}{
	{"password", "password"},
	{"passwd", "password"},
	{"email", "email"},
	{"phone", "phone"},
	{"tel", "phone"},
	{"search", "search"},
	{"number", "number"},
	{"amount", "number"},
	{"date", "date"},
	{"url", "url"},
}

// InferInputType classifies an editable element's expected input
func InferInputType(a types.ElementAttrs) string {
	if !a.Flags.Editable {
		return ""
	}
	hay := strings.ToLower(a.ResourceID + " " + a.Label + " " + a.Class)
	for _, k := range inputTypeKeywords {
		if strings.Contains(hay, k.keyword) {
			return k.input
		}
	}
	return "text"
}

func classContains(a types.ElementAttrs, needles ...string) bool {
	class := strings.ToLower(a.Class)
	for _, n := range needles {
		if strings.Contains(class, n) {
			return true
		}
	}
	return false
}

func idContains(a types.ElementAttrs, needle string) bool {
	return strings.Contains(strings.ToLower(a.ResourceID), needle)
}
