package receipt

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoauth/evaluator/internal/model"
	"github.com/agentoauth/evaluator/internal/state"
)

func TestMintSignsAndPersistsReceipt(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	backend := state.NewMemoryBackend()
	signer := NewSigner(priv, "receipt-kid-1", backend)

	r := model.Receipt{
		PolicyID:  "pol1",
		Decision:  model.DecisionAllow,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	id, token, err := signer.Mint(context.Background(), r)
	require.NoError(t, err)
	assert.Regexp(t, `^rcpt_[0-9a-f]{32}$`, id)
	require.NotEmpty(t, token)

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return pub, nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	stored, err := signer.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestGetUnknownReceiptReturnsNotFound(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := NewSigner(priv, "receipt-kid-1", state.NewMemoryBackend())

	_, err = signer.Get(context.Background(), "rcpt_doesnotexist")
	assert.ErrorIs(t, err, state.ErrNotFound)
}
