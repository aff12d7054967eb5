package browsingcontext

import (
	"encoding/json"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// Info describes a browsing context. It is the element type of the
// getTree result and the payload of contextCreated and contextDestroyed.
type Info struct {
	Context        string
	URL            string
	Children       []Info
	Parent         *string
	UserContext    string
	OriginalOpener *string
	ClientWindow   string

	AdditionalData map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler. A null children list stays
// nil; an empty one is non-nil.
func (i *Info) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("browsingContext.Info", data)
	if err != nil {
		return err
	}
	r.Required("context", &i.Context)
	r.Required("url", &i.URL)
	r.Required("children", &i.Children)
	r.Optional("parent", &i.Parent)
	r.Optional("userContext", &i.UserContext)
	r.Optional("originalOpener", &i.OriginalOpener)
	r.Optional("clientWindow", &i.ClientWindow)
	i.AdditionalData = r.Extra()
	return r.Err()
}

// TopLevel reports whether the context has no parent.
func (i Info) TopLevel() bool {
	return i.Parent == nil
}

// Walk calls fn for i and every descendant, depth first, until fn returns
// false.
func (i Info) Walk(fn func(Info) bool) bool {
	if !fn(i) {
		return false
	}
	for _, c := range i.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// ReadinessState is how long navigate waits before returning.
type ReadinessState string

const (
	ReadinessNone        ReadinessState = "none"
	ReadinessInteractive ReadinessState = "interactive"
	ReadinessComplete    ReadinessState = "complete"
)

// CreateType is the kind of context to create.
type CreateType string

const (
	CreateTab    CreateType = "tab"
	CreateWindow CreateType = "window"
)

// Viewport is a viewport size in CSS pixels.
type Viewport struct {
	Width  uint `json:"width"`
	Height uint `json:"height"`
}

// NavigationInfo is the payload of load and domContentLoaded.
type NavigationInfo struct {
	Context    string
	Navigation *string
	Timestamp  uint64
	URL        string
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NavigationInfo) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("browsingContext.NavigationInfo", data)
	if err != nil {
		return err
	}
	r.Required("context", &n.Context)
	r.Required("navigation", &n.Navigation)
	r.Required("timestamp", &n.Timestamp)
	r.Required("url", &n.URL)
	return r.Err()
}
