package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/midtrans/midtrans-go"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	err := classify(&midtrans.Error{Message: "not found", StatusCode: http.StatusNotFound})
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	err = classify(&midtrans.Error{Message: "bad key", StatusCode: http.StatusUnauthorized})
	assert.ErrorIs(t, err, ErrRejected)

	err = classify(&midtrans.Error{Message: "upstream down", StatusCode: http.StatusBadGateway})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejected))
}

func TestNewWithoutServerKeyIsDisabled(t *testing.T) {
	client := New(config.Config{}, zap.NewNop())

	_, err := client.GetTransactionStatus(context.Background(), "SUB-1-1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
