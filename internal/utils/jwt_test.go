package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("k", "staff-1", "STAFF", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims["sub"])
	assert.Equal(t, "STAFF", claims["role"])

	_, err = NewAccessToken("", "x", "STAFF", time.Hour)
	assert.Error(t, err)
	_, err = NewAccessToken("k", "x", "STAFF", 0)
	assert.Error(t, err)
}
