package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecretKey = "test-secret-key-for-predictable-results"

func TestTokenManager_GenerateToken(t *testing.T) {
	tests := []struct {
		name     string
		userID   int64
		duration time.Duration
	}{
		{
			name:     "success: generate token valid for an hour",
			userID:   42,
			duration: time.Hour,
		},
		{
			name:     "success: generate token valid for 30 minutes",
			userID:   7,
			duration: 30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTokenManager(testSecretKey, tt.duration)

			tokenString, err := m.GenerateToken(tt.userID)
			require.NoError(t, err)
			require.NotEmpty(t, tokenString)

			claims, err := m.VerifyToken(tokenString)
			require.NoError(t, err)

			userID, err := claims.UserID()
			require.NoError(t, err)
			assert.Equal(t, tt.userID, userID)
			assert.WithinDuration(t, time.Now().Add(tt.duration), claims.ExpiresAt.Time, time.Second*5)
		})
	}
}

func TestTokenManager_VerifyToken(t *testing.T) {
	m := NewTokenManager(testSecretKey, time.Hour)

	validToken, _ := m.GenerateToken(1)
	expiredToken, _ := m.generate(1, -time.Hour)

	otherSecretToken, _ := NewTokenManager("different-secret-key", time.Hour).GenerateToken(1)

	claimsWithWrongMethod := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenWithWrongMethod := jwt.NewWithClaims(jwt.SigningMethodNone, claimsWithWrongMethod)
	wrongMethodTokenString, _ := tokenWithWrongMethod.SignedString(jwt.UnsafeAllowNoneSignatureType)

	foreignIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignIssuerString, _ := foreignIssuer.SignedString([]byte(testSecretKey))

	tests := []struct {
		name              string
		tokenString       string
		expectError       bool
		expectedErrorType error
	}{
		{
			name:        "success: verify valid token",
			tokenString: validToken,
		},
		{
			name:              "failure: verify expired token",
			tokenString:       expiredToken,
			expectError:       true,
			expectedErrorType: jwt.ErrTokenExpired,
		},
		{
			name:              "failure: verify token with invalid signature",
			tokenString:       otherSecretToken,
			expectError:       true,
			expectedErrorType: jwt.ErrTokenSignatureInvalid,
		},
		{
			name:              "failure: verify malformed token",
			tokenString:       "not-a-valid-jwt-token",
			expectError:       true,
			expectedErrorType: jwt.ErrTokenMalformed,
		},
		{
			name:              "failure: verify token with wrong signing method",
			tokenString:       wrongMethodTokenString,
			expectError:       true,
			expectedErrorType: ErrInvalidSigningMethod,
		},
		{
			name:              "failure: verify token from another issuer",
			tokenString:       foreignIssuerString,
			expectError:       true,
			expectedErrorType: jwt.ErrTokenInvalidIssuer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := m.VerifyToken(tt.tokenString)

			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErrorType)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, claims)
			}
		})
	}
}

func TestTokenManager_Authenticate(t *testing.T) {
	m := NewTokenManager(testSecretKey, time.Hour)

	validToken, _ := m.GenerateToken(99)
	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	badSubjectString, _ := badSubject.SignedString([]byte(testSecretKey))

	tests := []struct {
		name           string
		tokenString    string
		expectedOK     bool
		expectedUserID int64
	}{
		{
			name:           "success: valid token",
			tokenString:    validToken,
			expectedOK:     true,
			expectedUserID: 99,
		},
		{
			name:        "failure: non numeric subject",
			tokenString: badSubjectString,
		},
		{
			name:        "failure: invalid token string",
			tokenString: "invalid-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := m.Authenticate(tt.tokenString)
			assert.Equal(t, tt.expectedOK, err == nil)
			assert.Equal(t, tt.expectedUserID, userID)
		})
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, CheckPassword(hash, "s3cret!"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrPasswordMismatch)
}
