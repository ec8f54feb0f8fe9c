// Package session contains the server-side portal session: the bearer token
// and identity established at login plus the one-shot flash slots (errors,
// submitted form values, banner message) consumed by the next page view.
package session

import (
	"errors"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/er-portal/internal/auth"
)

// Banner is a one-shot notification rendered on the next page view.
type Banner struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Data is the value stored per browser session.
type Data struct {
	Token    string        `json:"token"`
	Identity auth.Identity `json:"identity"`

	// One-shot flash state. Read-and-clear semantics are enforced by the
	// handlers via TakeFlash.
	Errors     map[string]string `json:"errors,omitempty"`
	FormFields map[string]string `json:"formFields,omitempty"`
	Banner     *Banner           `json:"bannerMessage,omitempty"`
}

// Flash is the cleared snapshot returned by TakeFlash.
type Flash struct {
	Errors     map[string]string
	FormFields map[string]string
	Banner     *Banner
}

// TakeFlash removes and returns the one-shot slots. The caller must persist
// the session afterwards for the clear to stick.
func (d *Data) TakeFlash() Flash {
	f := Flash{Errors: d.Errors, FormFields: d.FormFields, Banner: d.Banner}
	d.Errors = nil
	d.FormFields = nil
	d.Banner = nil
	return f
}

// ClearFlash drops the one-shot slots without reading them.
func (d *Data) ClearFlash() {
	d.Errors = nil
	d.FormFields = nil
	d.Banner = nil
}

// Authenticated reports whether a login has completed for this session.
func (d *Data) Authenticated() bool {
	return d != nil && d.Token != "" && d.Identity.LACode != ""
}

// ErrNotFound is returned by stores when no session exists for an ID.
var ErrNotFound = errors.New("session not found")

// NewID returns a fresh opaque session identifier.
func NewID() string {
	return uuid.NewString()
}
