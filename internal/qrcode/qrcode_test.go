package qrcode

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := New("test-secret", 1)
	require.NoError(t, err)
	return a
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	a := newAuthenticator(t)
	ticketID, eventID := uuid.New(), uuid.New()

	token, err := a.Generate(ticketID, eventID)
	require.NoError(t, err)

	res := a.Verify(token)
	require.True(t, res.Valid, "verify failed: %v", res.Error)
	assert.Equal(t, ticketID, res.TicketID)
	assert.Equal(t, eventID, res.EventID)
}

func TestTokenShapeIsCompact(t *testing.T) {
	a := newAuthenticator(t)
	token, err := a.Generate(uuid.New(), uuid.New())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(token), &raw))
	assert.Len(t, raw, 4)
	for _, key := range []string{"t", "e", "v", "s"} {
		assert.Contains(t, raw, key)
	}
	assert.Len(t, raw["s"], signatureLen)
}

func TestSignatureIsDeterministic(t *testing.T) {
	a := newAuthenticator(t)
	ticketID, eventID := uuid.New(), uuid.New()

	first, err := a.Generate(ticketID, eventID)
	require.NoError(t, err)
	second, err := a.Generate(ticketID, eventID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCrossEventReplayRejected(t *testing.T) {
	a := newAuthenticator(t)
	ticketID, eventA, eventB := uuid.New(), uuid.New(), uuid.New()

	token, err := a.Generate(ticketID, eventA)
	require.NoError(t, err)

	res := a.VerifyForEvent(token, eventB)
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Error, ErrWrongEvent)

	// rewriting the event id in the payload breaks the signature
	forged := strings.Replace(token, eventA.String(), eventB.String(), 1)
	res = a.Verify(forged)
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Error, ErrBadSignature)
}

func TestSingleCharacterTamperRejected(t *testing.T) {
	a := newAuthenticator(t)
	token, err := a.Generate(uuid.New(), uuid.New())
	require.NoError(t, err)

	for i := range token {
		replacement := byte('x')
		if token[i] == 'x' {
			replacement = 'y'
		}
		tampered := token[:i] + string(replacement) + token[i+1:]
		res := a.Verify(tampered)
		assert.Falsef(t, res.Valid, "tamper at %d accepted: %s", i, tampered)
	}

	// flipping a signature hex digit to another hex digit
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(token), &p))
	flipped := []byte(p.Signature)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}
	p.Signature = string(flipped)
	raw, _ := json.Marshal(p)
	res := a.Verify(string(raw))
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Error, ErrBadSignature)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	a := newAuthenticator(t)
	valid := Payload{TicketID: uuid.NewString(), EventID: uuid.NewString(), Version: 1}
	valid.Signature = a.sign(valid.TicketID, valid.EventID, 1)

	encode := func(p Payload) string {
		raw, _ := json.Marshal(p)
		return string(raw)
	}
	withVersion := valid
	withVersion.Version = 9
	badID := valid
	badID.TicketID = "not-a-uuid"
	noSig := valid
	noSig.Signature = ""

	cases := map[string]struct {
		token string
		want  error
	}{
		"empty":       {"", ErrMalformed},
		"not json":    {"hello", ErrMalformed},
		"oversized":   {"{" + strings.Repeat("a", maxTokenLen) + "}", ErrMalformed},
		"missing key": {`{"t":"a","e":"b","v":1}`, ErrMalformed},
		"bad json":    {`{"t":"a","e":"b","v":1,"s":}`, ErrMalformed},
		"no sig":      {encode(noSig), ErrMissingFields},
		"version":     {encode(withVersion), ErrUnsupportedVersion},
		"bad id":      {encode(badID), ErrInvalidID},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := a.Verify(tc.token)
			assert.False(t, res.Valid)
			assert.ErrorIs(t, res.Error, tc.want)
		})
	}
}

func TestDifferentSecretRejected(t *testing.T) {
	a := newAuthenticator(t)
	other, err := New("other-secret", 1)
	require.NoError(t, err)

	token, err := a.Generate(uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, other.Verify(token).Valid)
}

func TestAcceptedVersionsDuringRotation(t *testing.T) {
	v1 := newAuthenticator(t)
	v2, err := New("test-secret", 2, WithAcceptedVersions(1))
	require.NoError(t, err)

	token, err := v1.Generate(uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, v2.Verify(token).Valid)

	newer, err := v2.Generate(uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, v1.Verify(newer).Valid)
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New(" ", 1)
	assert.Error(t, err)
	_, err = New("secret", 0)
	assert.Error(t, err)
}
