// Package orderref encodes and decodes the order reference that ties a
// processor-side payment order to one member of a split.
//
// Format: <splitId>_<memberId>_<nonce>. Decoding works from the right, so a
// split ID may itself contain the separator. A member ID may not.
//
// Both the order-creation path and the webhook path must go through this
// package; it is the only definition of the format.
package orderref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Separator joins the fields of an order reference.
const Separator = "_"

var (
	ErrMalformedReference = errors.New("malformed order reference")
	ErrInvalidID          = errors.New("invalid identifier for order reference")
)

// Ref is a decoded order reference.
type Ref struct {
	SplitID  string
	MemberID string
	Nonce    string
}

// String re-encodes the reference.
func (r Ref) String() string {
	return strings.Join([]string{r.SplitID, r.MemberID, r.Nonce}, Separator)
}

// Codec encodes order references with a strictly increasing,
// time-derived nonce.
type Codec struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewCodec creates a Codec that derives nonces from the wall clock.
func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// NewCodecWithClock creates a Codec with a custom clock, for tests.
func NewCodecWithClock(now func() time.Time) *Codec {
	return &Codec{now: now}
}

// Encode builds the order reference for a payment attempt by memberID on splitID.
func (c *Codec) Encode(splitID, memberID string) (string, error) {
	if splitID == "" || memberID == "" {
		return "", fmt.Errorf("%w: split and member IDs are required", ErrInvalidID)
	}
	if strings.Contains(memberID, Separator) {
		return "", fmt.Errorf("%w: member ID %q contains %q", ErrInvalidID, memberID, Separator)
	}
	ref := Ref{SplitID: splitID, MemberID: memberID, Nonce: c.nextNonce()}
	return ref.String(), nil
}

// nextNonce returns the current Unix time in milliseconds, bumped past the
// previous value when two references are encoded in the same millisecond.
func (c *Codec) nextNonce() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.now().UnixMilli()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return strconv.FormatInt(n, 10)
}

// Decode parses an order reference produced by Encode.
func Decode(ref string) (Ref, error) {
	parts := strings.Split(ref, Separator)
	if len(parts) < 3 {
		return Ref{}, fmt.Errorf("%w: %q has %d segment(s)", ErrMalformedReference, ref, len(parts))
	}

	n := len(parts)
	r := Ref{
		SplitID:  strings.Join(parts[:n-2], Separator),
		MemberID: parts[n-2],
		Nonce:    parts[n-1],
	}
	if r.SplitID == "" || r.MemberID == "" || r.Nonce == "" {
		return Ref{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedReference, ref)
	}
	return r, nil
}
