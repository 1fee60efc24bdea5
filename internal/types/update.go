// Package types provides the value types shared by the preview pipeline.
// It exists so the watcher, router, hub and server packages can exchange
// data without importing each other.
package types

// Role identifies what a watched file contributes to the viewer page.
type Role int

const (
	// RoleDocument is the Markdown document being previewed.
	RoleDocument Role = iota
	// RoleStylesheet is the CSS applied to the rendered document.
	RoleStylesheet
)

// String returns the string representation of the Role
func (r Role) String() string {
	switch r {
	case RoleDocument:
		return "document"
	case RoleStylesheet:
		return "stylesheet"
	default:
		return "unknown"
	}
}

// WatchTarget is a canonical absolute path together with its role. Targets
// are created once at startup and never change afterwards.
type WatchTarget struct {
	Path string
	Role Role
}

// Update is the message pushed to viewers. A nil field means "unchanged";
// the first Update a viewer receives always has both fields set.
type Update struct {
	Content    *string `json:"content,omitempty"`
	Stylesheet *string `json:"stylesheet,omitempty"`
}

// NewUpdate builds a full Update carrying both content and stylesheet.
func NewUpdate(content, stylesheet string) Update {
	return Update{Content: &content, Stylesheet: &stylesheet}
}

// ContentUpdate builds an Update that only replaces the rendered content.
func ContentUpdate(content string) Update {
	return Update{Content: &content}
}

// StylesheetUpdate builds an Update that only replaces the stylesheet.
func StylesheetUpdate(stylesheet string) Update {
	return Update{Stylesheet: &stylesheet}
}

// IsEmpty reports whether the Update carries no fields at all.
func (u Update) IsEmpty() bool {
	return u.Content == nil && u.Stylesheet == nil
}

// IsComplete reports whether both fields are populated.
func (u Update) IsComplete() bool {
	return u.Content != nil && u.Stylesheet != nil
}

// Merge returns a copy of u with every non-nil field of next applied on top.
// Neither u nor next is modified.
func (u Update) Merge(next Update) Update {
	merged := Update{}
	if u.Content != nil {
		merged.Content = copyString(*u.Content)
	}
	if u.Stylesheet != nil {
		merged.Stylesheet = copyString(*u.Stylesheet)
	}
	if next.Content != nil {
		merged.Content = copyString(*next.Content)
	}
	if next.Stylesheet != nil {
		merged.Stylesheet = copyString(*next.Stylesheet)
	}
	return merged
}

// ContentOrEmpty returns the content, or "" when it is unset.
func (u Update) ContentOrEmpty() string {
	if u.Content == nil {
		return ""
	}
	return *u.Content
}

// StylesheetOrEmpty returns the stylesheet, or "" when it is unset.
func (u Update) StylesheetOrEmpty() string {
	if u.Stylesheet == nil {
		return ""
	}
	return *u.Stylesheet
}

func copyString(s string) *string {
	return &s
}
