// Package qrcode signs and verifies the compact payload printed on tickets.
//
// A token is the JSON object {"t":ticketId,"e":eventId,"v":version,"s":sig}
// where sig is the first 16 hex characters of
// HMAC-SHA256(secret, "{ticketId}:{eventId}:v{version}"). The signature binds
// the event id, so a token minted for one event never verifies for another.
// Scanners still check live ticket status after a successful verify.
package qrcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	signatureLen = 16
	// uuids + version + signature + keys/quotes; anything longer is not ours
	maxTokenLen = 160
)

var (
	ErrMalformed          = errors.New("malformed token")
	ErrMissingFields      = errors.New("missing required fields")
	ErrUnsupportedVersion = errors.New("unsupported token version")
	ErrInvalidID          = errors.New("invalid ticket or event id")
	ErrBadSignature       = errors.New("signature mismatch")
	ErrWrongEvent         = errors.New("token issued for a different event")
)

// Payload is the wire shape of a token.
type Payload struct {
	TicketID  string `json:"t"`
	EventID   string `json:"e"`
	Version   int    `json:"v"`
	Signature string `json:"s"`
}

// Result is the outcome of Verify. Error is set when Valid is false.
type Result struct {
	Valid    bool
	TicketID uuid.UUID
	EventID  uuid.UUID
	Error    error
}

// Authenticator holds the server secret. It is safe for concurrent use.
type Authenticator struct {
	secret   []byte
	version  int
	accepted map[int]struct{}
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithAcceptedVersions lets Verify accept older versions during a rotation.
func WithAcceptedVersions(versions ...int) Option {
	return func(a *Authenticator) {
		for _, v := range versions {
			a.accepted[v] = struct{}{}
		}
	}
}

// New builds an Authenticator issuing tokens at version.
func New(secret string, version int, opts ...Option) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("qr secret required")
	}
	if version <= 0 {
		return nil, fmt.Errorf("qr version must be positive")
	}
	a := &Authenticator{
		secret:   []byte(secret),
		version:  version,
		accepted: map[int]struct{}{version: {}},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Generate returns the encoded token for a ticket.
func (a *Authenticator) Generate(ticketID, eventID uuid.UUID) (string, error) {
	payload := Payload{
		TicketID:  ticketID.String(),
		EventID:   eventID.String(),
		Version:   a.version,
		Signature: a.sign(ticketID.String(), eventID.String(), a.version),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode qr payload: %w", err)
	}
	return string(raw), nil
}

// Verify checks a token's shape, ids, version, and signature.
func (a *Authenticator) Verify(token string) Result {
	if !looksLikeToken(token) {
		return invalid(ErrMalformed)
	}

	var p Payload
	if err := json.Unmarshal([]byte(token), &p); err != nil {
		return invalid(ErrMalformed)
	}
	if p.TicketID == "" || p.EventID == "" || p.Version == 0 || p.Signature == "" {
		return invalid(ErrMissingFields)
	}
	if _, ok := a.accepted[p.Version]; !ok {
		return invalid(ErrUnsupportedVersion)
	}
	ticketID, err := parseCanonicalUUID(p.TicketID)
	if err != nil {
		return invalid(ErrInvalidID)
	}
	eventID, err := parseCanonicalUUID(p.EventID)
	if err != nil {
		return invalid(ErrInvalidID)
	}

	expected := a.sign(p.TicketID, p.EventID, p.Version)
	if !hmac.Equal([]byte(expected), []byte(p.Signature)) {
		return invalid(ErrBadSignature)
	}
	return Result{Valid: true, TicketID: ticketID, EventID: eventID}
}

// VerifyForEvent additionally requires the token to belong to eventID.
func (a *Authenticator) VerifyForEvent(token string, eventID uuid.UUID) Result {
	res := a.Verify(token)
	if !res.Valid {
		return res
	}
	if res.EventID != eventID {
		return invalid(ErrWrongEvent)
	}
	return res
}

func (a *Authenticator) sign(ticketID, eventID string, version int) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s:%s:v%d", ticketID, eventID, version)
	return hex.EncodeToString(mac.Sum(nil))[:signatureLen]
}

// looksLikeToken rejects input that cannot possibly be a token before any
// parsing or hashing happens.
func looksLikeToken(token string) bool {
	if len(token) < 2 || len(token) > maxTokenLen {
		return false
	}
	if token[0] != '{' || token[len(token)-1] != '}' {
		return false
	}
	for _, key := range []string{`"t"`, `"e"`, `"v"`, `"s"`} {
		if !strings.Contains(token, key) {
			return false
		}
	}
	return true
}

// parseCanonicalUUID only accepts the 36-character hyphenated form so the
// signed string and the parsed id cannot disagree.
func parseCanonicalUUID(value string) (uuid.UUID, error) {
	if len(value) != 36 {
		return uuid.Nil, ErrInvalidID
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, err
	}
	if id.String() != strings.ToLower(value) {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

func invalid(err error) Result {
	return Result{Valid: false, Error: err}
}
