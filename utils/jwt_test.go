package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyengine/config"
	"verifyengine/models"
)

func TestGenerateAndParseJWTToken_RoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-signing-key"

	user := &models.User{}
	user.ID = 42

	access, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	claims, err := ParseJWTToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
}

func TestParseJWTToken_RejectsGarbage(t *testing.T) {
	config.AppConfig.JWTSecret = "test-signing-key"

	_, err := ParseJWTToken("not-a-real-token")
	assert.Error(t, err)
}
