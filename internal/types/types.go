package types

import (
	"fmt"
	"time"
)

// Bounds is an element's position on screen in pixels
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// String renders bounds in the stored "l,t,r,b" form
func (b Bounds) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.Left, b.Top, b.Right, b.Bottom)
}

// Width returns the bounds width in pixels
func (b Bounds) Width() int { return b.Right - b.Left }

// Height returns the bounds height in pixels
func (b Bounds) Height() int { return b.Bottom - b.Top }

// Flags are the capability flags reported by the node source
type Flags struct {
	Clickable     bool `json:"clickable"`
	LongClickable bool `json:"long_clickable"`
	Editable      bool `json:"editable"`
	Scrollable    bool `json:"scrollable"`
	Checkable     bool `json:"checkable"`
	Checked       bool `json:"checked"`
	Focusable     bool `json:"focusable"`
	Enabled       bool `json:"enabled"`
}

// ElementAttrs is the scraped description of one interactive node.
// Class, ResourceID, Text, Label and Bounds are the identity fields:
// they feed the content hash and never change for a given element row.
type ElementAttrs struct {
	Class      string `json:"class"`
	ResourceID string `json:"resource_id"`
	Text       string `json:"text"`
	Label      string `json:"label"` // accessibility label / content description
	Bounds     Bounds `json:"bounds"`
	Flags      Flags  `json:"flags"`
	Depth      int    `json:"depth"`
	Index      int    `json:"index"` // sibling index, document order
}

// Role is the inferred semantic role of an element
type Role string

const (
	RoleButton    Role = "button"
	RoleInput     Role = "input"
	RoleLabel     Role = "label"
	RoleCheckbox  Role = "checkbox"
	RoleRadio     Role = "radio"
	RoleDropdown  Role = "dropdown"
	RoleLink      Role = "link"
	RoleContainer Role = "container"
	RoleUnknown   Role = "unknown"
)

// Action is the dispatchable action type bound to a command
type Action string

const (
	ActionClick     Action = "click"
	ActionLongClick Action = "long_click"
	ActionType      Action = "type"
	ActionScroll    Action = "scroll"
	ActionFocus     Action = "focus"
	ActionCheck     Action = "check"
	ActionUncheck   Action = "uncheck"
	ActionSelect    Action = "select"
)

// EventKind distinguishes screen-level from content-level notifications
type EventKind string

const (
	EventScreenChanged  EventKind = "screen_changed"
	EventContentChanged EventKind = "content_changed"
)

// ScreenEvent is one notification from the external event source.
// WindowID is transient and must never feed the screen hash.
type ScreenEvent struct {
	Package   string    `json:"package"`
	WindowID  string    `json:"window_id"`
	Title     string    `json:"title"` // stable title
	Activity  string    `json:"activity"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ScrapeResult is the structured outcome of one scrape pass
type ScrapeResult struct {
	ScreenHash        string `json:"screen_hash"`
	ElementCount      int    `json:"element_count"`
	CommandCount      int    `json:"command_count"`
	TruncatedBranches int    `json:"truncated_branches,omitempty"`
	Success           bool   `json:"success"`
	Err               string `json:"error,omitempty"`
}

// Command is one generated phrase bound to an element
type Command struct {
	ID          int64     `json:"id"`
	ElementHash string    `json:"element_hash"`
	Text        string    `json:"text"`
	Action      Action    `json:"action"`
	Confidence  float64   `json:"confidence"`
	Synonyms    []string  `json:"synonyms"`
	UsageCount  int       `json:"usage_count"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RelationKind is the typed edge between two elements
type RelationKind string

const (
	RelationLabelFor    RelationKind = "label_for"
	RelationInputFor    RelationKind = "input_for"
	RelationGroupMember RelationKind = "group_member"
)
