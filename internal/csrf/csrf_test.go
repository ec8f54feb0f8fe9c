package csrf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"), time.Minute)
	token := s.Token("session-1")
	assert.NotEmpty(t, token)

	assert.True(t, s.Verify("session-1", token))
	assert.False(t, s.Verify("session-2", token), "token must be bound to the session")
	assert.False(t, s.Verify("session-1", token+"x"))
	assert.False(t, s.Verify("session-1", "garbage"))
}

func TestSignerExpiry(t *testing.T) {
	s := NewSigner([]byte("topsecret"), -time.Minute)
	token := s.Token("session-1")
	assert.False(t, s.Verify("session-1", token), "expired token must not verify")
}

func TestSignerKeyed(t *testing.T) {
	a := NewSigner([]byte("key-a"), time.Minute)
	b := NewSigner([]byte("key-b"), time.Minute)
	assert.False(t, b.Verify("session-1", a.Token("session-1")))
}
