package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	id := uuid.New()

	token, err := m.GenerateToken(id, "seller@shop.test", "Seller", "SELLER", []string{"sale:create"}, "v1")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "Seller", claims.Name)
	assert.Equal(t, []string{"sale:create"}, claims.Privileges)
	assert.Equal(t, "v1", claims.TokenVersion)
}

func TestValidateRejectsForeignSecretAndExpiry(t *testing.T) {
	m := NewManager("secret-a", time.Hour)
	token, err := m.GenerateToken(uuid.New(), "a@b.c", "A", "", nil, "")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
}
