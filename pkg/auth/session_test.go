package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionToken_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	token := CreateSessionToken("user-123", now.Add(time.Hour), testSecret)

	got, err := VerifySessionToken(token, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got)
}

func TestSessionToken_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	token := CreateSessionToken("user-123", now.Add(time.Hour), testSecret)
	encoded, sig, _ := strings.Cut(token, ".")

	tests := []struct {
		name  string
		token string
		at    time.Time
		want  error
	}{
		{"no separator", "garbage", now, ErrInvalidToken},
		{"bad base64", "!!!." + sig, now, ErrInvalidToken},
		{"wrong signature", encoded + ".deadbeef", now, ErrInvalidToken},
		{"other secret", CreateSessionToken("user-123", now.Add(time.Hour), SessionSecretBytes("another-secret")), now, ErrInvalidToken},
		{"expired", token, now.Add(time.Hour), ErrExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifySessionToken(tt.token, testSecret, tt.at)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSessionSecretBytes_PadsShortSecrets(t *testing.T) {
	assert.Len(t, SessionSecretBytes("short"), 32)
	assert.Equal(t, []byte(strings.Repeat("k", 40)), SessionSecretBytes(strings.Repeat("k", 40)))
}
