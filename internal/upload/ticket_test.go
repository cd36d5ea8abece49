package upload

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)

	token, issued, err := s.Issue(42, 7)
	require.NoError(t, err)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), got.DocumentID)
	assert.Equal(t, uint(7), got.SessionID)
	assert.Equal(t, issued.Nonce, got.Nonce)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
}

func TestNoncesAreUnique(t *testing.T) {
	s := newTestSigner(t, time.Now())
	_, a, err := s.Issue(1, 1)
	require.NoError(t, err)
	_, b, err := s.Issue(1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Nonce, b.Nonce)
}

func TestVerifyRejectsEverySignatureMutation(t *testing.T) {
	s := newTestSigner(t, time.Now())
	token, _, err := s.Issue(3, 4)
	require.NoError(t, err)

	dot := strings.LastIndex(token, ".")
	require.Positive(t, dot)
	for i := dot + 1; i < len(token); i++ {
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		mutated := token[:i] + string(replacement) + token[i+1:]
		_, err := s.Verify(mutated)
		assert.Error(t, err, "mutation at %d accepted", i)
	}
}

func TestVerifyFailureKinds(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	token, _, err := s.Issue(3, 4)
	require.NoError(t, err)

	other, err := NewSigner("another-secret", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue(3, 4)
	require.NoError(t, err)

	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrTicketMalformed)

	_, err = s.Verify("no-signature-segment")
	assert.ErrorIs(t, err, ErrTicketMalformed)

	_, err = s.Verify(foreign)
	assert.ErrorIs(t, err, ErrTicketSignature)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("", time.Hour)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrTicketMalformed))
}
