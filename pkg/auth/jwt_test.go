package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-key-min-32-characters-long"

func TestTokenService_Verify(t *testing.T) {
	tests := []struct {
		name    string
		issuer  string
		ttl     time.Duration
		wantErr error
	}{
		{name: "valid token", issuer: "riskgate", ttl: time.Hour},
		{name: "expired token", issuer: "riskgate", ttl: -time.Hour, wantErr: ErrExpiredToken},
		{name: "foreign issuer", issuer: "someone-else", ttl: time.Hour, wantErr: ErrInvalidToken},
	}

	verifier := NewTokenService(secret, "riskgate", time.Hour)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := NewTokenService(secret, tt.issuer, tt.ttl).Issue("execution")
			require.NoError(t, err)

			claims, err := verifier.Verify(token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "execution", claims.Service)
		})
	}
}

func TestTokenService_WrongSecret(t *testing.T) {
	token, err := NewTokenService("another-secret-key-min-32-characters", "riskgate", time.Hour).Issue("execution")
	require.NoError(t, err)

	_, err = NewTokenService(secret, "riskgate", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Garbage(t *testing.T) {
	_, err := NewTokenService(secret, "riskgate", time.Hour).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_IssueRequiresService(t *testing.T) {
	_, err := NewTokenService(secret, "riskgate", time.Hour).Issue("")
	assert.ErrorIs(t, err, ErrMissingClaims)
}
