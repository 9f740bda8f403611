// Package gateway creates checkouts and reads transaction status from the
// payment gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/providers/retry"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured       = errors.New("gateway_not_configured")
	ErrTransactionNotFound = errors.New("gateway_transaction_not_found")
	ErrRejected            = errors.New("gateway_rejected")
)

type CreateTransactionRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	CustomerEmail string
	ItemID        string
	ItemName      string
}

type CreateTransactionResult struct {
	Token       string
	RedirectURL string
}

// Client is what checkout and the sweeper need from the gateway.
type Client interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResult, error)
	// GetTransactionStatus returns the raw gateway transaction_status.
	GetTransactionStatus(ctx context.Context, orderID string) (string, error)
}

type Midtrans struct {
	snap   snap.Client
	core   coreapi.Client
	policy retry.Policy
	log    *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) Client {
	key := strings.TrimSpace(cfg.Gateway.ServerKey)
	if key == "" {
		log.Warn("gateway server key not configured; checkout and abandonment checks are disabled")
		return disabled{}
	}

	env := midtrans.Sandbox
	if cfg.Gateway.Environment == "production" {
		env = midtrans.Production
	}

	m := &Midtrans{
		log: log.Named("gateway"),
		policy: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Step:     cfg.Retry.Step,
			Timeout:  cfg.Gateway.Timeout,
		},
	}
	m.snap.New(key, env)
	m.core.New(key, env)
	return m
}

func (m *Midtrans) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResult, error) {
	amount := req.Amount.Round(0).IntPart()
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrRejected)
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: amount,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.ItemID,
			Name:  req.ItemName,
			Price: amount,
			Qty:   1,
		}},
	}
	if req.CustomerEmail != "" {
		snapReq.CustomerDetail = &midtrans.CustomerDetails{Email: req.CustomerEmail}
	}

	var result *CreateTransactionResult
	err := retry.Do(ctx, m.policy, func(ctx context.Context) error {
		resp, err := retry.Await(ctx, func() (*snap.Response, error) {
			resp, gwErr := m.snap.CreateTransaction(snapReq)
			return resp, classify(gwErr)
		})
		if err != nil {
			return err
		}
		result = &CreateTransactionResult{Token: resp.Token, RedirectURL: resp.RedirectURL}
		return nil
	})
	if err != nil {
		m.log.Warn("create transaction failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, fmt.Errorf("gateway create transaction: %w", err)
	}
	return result, nil
}

func (m *Midtrans) GetTransactionStatus(ctx context.Context, orderID string) (string, error) {
	var status string
	err := retry.Do(ctx, m.policy, func(ctx context.Context) error {
		resp, err := retry.Await(ctx, func() (*coreapi.TransactionStatusResponse, error) {
			resp, gwErr := m.core.CheckTransaction(orderID)
			return resp, classify(gwErr)
		})
		if err != nil {
			return err
		}
		status = strings.ToLower(strings.TrimSpace(resp.TransactionStatus))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gateway transaction status: %w", err)
	}
	return status, nil
}

// classify converts the SDK's *midtrans.Error into an error value. A nil
// pointer must come back as an untyped nil.
func classify(gwErr *midtrans.Error) error {
	if gwErr == nil {
		return nil
	}
	switch code := gwErr.StatusCode; {
	case code == http.StatusNotFound:
		return retry.Permanent(fmt.Errorf("%w: %s", ErrTransactionNotFound, gwErr.Message))
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests:
		return retry.Permanent(fmt.Errorf("%w: %s", ErrRejected, gwErr.Message))
	}
	return fmt.Errorf("gateway status %d: %s", gwErr.StatusCode, gwErr.Message)
}

type disabled struct{}

func (disabled) CreateTransaction(context.Context, CreateTransactionRequest) (*CreateTransactionResult, error) {
	return nil, ErrNotConfigured
}

func (disabled) GetTransactionStatus(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
