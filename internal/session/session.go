// Package session exposes the authenticated operator to the rest of the daemon.
package session

import "strings"

// Provider reports the operator the daemon acts for.
type Provider interface {
	OperatorID() (string, bool)
}

// Static is a Provider with a fixed operator, typically read from configuration.
type Static string

// OperatorID returns the configured operator; an empty value means signed out.
func (s Static) OperatorID() (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}
