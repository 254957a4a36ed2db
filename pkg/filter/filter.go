// Package filter implements the decision logic behind the Windows
// password-filter DLL entrypoint. The entrypoint itself (cgo export,
// stdcall calling convention, PUNICODE_STRING marshaling) lives outside
// this module; Check is the part of that collaborator which depends on
// the core.
package filter

import "github.com/rlabolle/hibppwdflt/pkg/chdb"

// Reader is the subset of *chdb.Reader that Check depends on.
type Reader interface {
	Contains(digest [chdb.DigestSize]byte) (bool, error)
}

// Check decides whether a password should be accepted, mirroring
// password_filter in the original implementation: a password-set
// operation is skipped unless checkOnSet is enabled, and an I/O error
// falls back to the caller's on-error policy rather than deciding for it
// (spec §6, "the core does not decide").
func Check(
	reader Reader,
	digest [chdb.DigestSize]byte,
	isPasswordSet, checkOnSet, acceptOnError bool,
) (accept bool, err error) {
	if isPasswordSet && !checkOnSet {
		return true, nil
	}

	found, err := reader.Contains(digest)
	if err != nil {
		return acceptOnError, err
	}

	return !found, nil
}
