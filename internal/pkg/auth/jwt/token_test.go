package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "user-1"}, testSecret, time.Minute)
	require.NoError(t, err)

	payload, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", payload.ID)
	assert.Equal(t, TokenIssuer, payload.Issuer)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "user-1"}, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "user-1"}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseToken_RequiresIdentity(t *testing.T) {
	token, err := GenerateToken(&Payload{}, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}

func TestIdentityExtractorMiddleware(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "user-7"}, testSecret, time.Minute)
	require.NoError(t, err)

	var seen *Payload
	handler := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	require.NotNil(t, seen)
	assert.Equal(t, "user-7", seen.ID)

	seen = nil
	r = httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Nil(t, seen)
}
