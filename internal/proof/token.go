// Package proof implements the proof-of-presence tokens carried in handover
// QR codes and the checks a security desk runs before a key changes hands.
package proof

import (
	"bytes"
	"encoding/json"
	"time"

	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

// DefaultTTL is how long a minted token stays valid.
const DefaultTTL = 10 * time.Minute

const (
	errMalformedPayload   = "proof token is not valid JSON"
	errMissingAssignment  = "proof token is missing assignmentId"
	errMissingKey         = "proof token is missing keyId"
	errMissingHolder      = "proof token is missing holderId"
	errUnknownAction      = "proof token action must be collection or deposit"
	errMissingTimestamps  = "proof token is missing issuedAt or expiresAt"
	errInvertedTimestamps = "proof token expires before it was issued"
	errTrailingData       = "proof token has trailing data"
)

type Action string

const (
	ActionCollection Action = "collection"
	ActionDeposit    Action = "deposit"
)

func (a Action) Valid() bool {
	return a == ActionCollection || a == ActionDeposit
}

// Token is the QR payload. Timestamps are epoch milliseconds on the wire.
type Token struct {
	AssignmentID uuid.UUID `json:"assignmentId"`
	KeyID        uuid.UUID `json:"keyId"`
	HolderID     uuid.UUID `json:"holderId"`
	Action       Action    `json:"action"`
	IssuedAt     int64     `json:"issuedAt"`
	ExpiresAt    int64     `json:"expiresAt"`
}

// NewToken builds a token valid for ttl from now.
func NewToken(assignmentID, keyID, holderID uuid.UUID, action Action, now time.Time, ttl time.Duration) Token {
	return Token{
		AssignmentID: assignmentID,
		KeyID:        keyID,
		HolderID:     holderID,
		Action:       action,
		IssuedAt:     now.UnixMilli(),
		ExpiresAt:    now.Add(ttl).UnixMilli(),
	}
}

// Expired reports whether now is past the token's expiry.
func (t Token) Expired(now time.Time) bool {
	return now.UnixMilli() > t.ExpiresAt
}

// Encode returns the wire form embedded in the QR code.
func (t Token) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Parse decodes a wire token. Every failure is a MalformedProof error.
func Parse(raw string) (Token, error) {
	var t Token
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Token{}, apperrors.MalformedProof(errMalformedPayload)
	}
	if dec.More() {
		return Token{}, apperrors.MalformedProof(errTrailingData)
	}

	switch {
	case t.AssignmentID == uuid.Nil:
		return Token{}, apperrors.MalformedProof(errMissingAssignment)
	case t.KeyID == uuid.Nil:
		return Token{}, apperrors.MalformedProof(errMissingKey)
	case t.HolderID == uuid.Nil:
		return Token{}, apperrors.MalformedProof(errMissingHolder)
	case !t.Action.Valid():
		return Token{}, apperrors.MalformedProof(errUnknownAction)
	case t.IssuedAt <= 0 || t.ExpiresAt <= 0:
		return Token{}, apperrors.MalformedProof(errMissingTimestamps)
	case t.ExpiresAt < t.IssuedAt:
		return Token{}, apperrors.MalformedProof(errInvertedTimestamps)
	}

	return t, nil
}
