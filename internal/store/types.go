package store

import (
	"errors"
	"fmt"
)

// Payload is a raw snapshot row or change-feed record. Its layout depends on
// the firmware generation that wrote it and is only interpreted by the
// synchronizer's adapter.
type Payload map[string]any

var (
	// ErrClaimRejected means the activation code is unknown, already used,
	// or its unit already has an owner.
	ErrClaimRejected = errors.New("activation code is invalid or already used")
	// ErrNotFound means no row matched the unit for the caller.
	ErrNotFound = errors.New("unit not found")
)

// ConnectivityError wraps a transport or query failure against the remote store.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("remote store %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err came from a failed store round trip.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

func connErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectivityError{Op: op, Err: err}
}

// Denomination selects a change-bank hopper.
type Denomination string

const (
	DenominationP1 Denomination = "P1"
	DenominationP5 Denomination = "P5"
)

func (d Denomination) column() (string, bool) {
	switch d {
	case DenominationP1:
		return "change_p1_count", true
	case DenominationP5:
		return "change_p5_count", true
	}
	return "", false
}
