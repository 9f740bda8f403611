// Package providertest holds in-memory collaborators for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/smallbiznis/guildpass/internal/providers/email"
	"github.com/smallbiznis/guildpass/internal/providers/gateway"
)

type RoleCall struct {
	GuildID string
	UserID  string
	RoleID  string
}

type DM struct {
	UserID string
	Text   string
}

// FakeDiscord records calls and returns the configured errors.
type FakeDiscord struct {
	mu sync.Mutex

	AssignErr     error
	RemoveErr     error
	DMErr         error
	PermissionErr error

	Assigned []RoleCall
	Removed  []RoleCall
	DMs      []DM
}

func (f *FakeDiscord) AssignRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AssignErr != nil {
		return f.AssignErr
	}
	f.Assigned = append(f.Assigned, RoleCall{GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

func (f *FakeDiscord) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.Removed = append(f.Removed, RoleCall{GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

func (f *FakeDiscord) SendDM(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DMErr != nil {
		return f.DMErr
	}
	f.DMs = append(f.DMs, DM{UserID: userID, Text: text})
	return nil
}

func (f *FakeDiscord) ValidateBotPermissions(ctx context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PermissionErr
}

func (f *FakeDiscord) AssignedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Assigned)
}

func (f *FakeDiscord) RemovedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Removed)
}

func (f *FakeDiscord) DMCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DMs)
}

type FakeEmail struct {
	mu sync.Mutex

	Err  error
	Sent []email.Message
}

func (f *FakeEmail) Send(ctx context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *FakeEmail) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// FakeGateway answers status lookups from Statuses keyed by order id.
type FakeGateway struct {
	mu sync.Mutex

	CreateErr error
	StatusErr error
	Statuses  map[string]string

	Created       []gateway.CreateTransactionRequest
	StatusQueries []string
}

func (f *FakeGateway) CreateTransaction(ctx context.Context, req gateway.CreateTransactionRequest) (*gateway.CreateTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.Created = append(f.Created, req)
	return &gateway.CreateTransactionResult{
		Token:       "tok-" + req.OrderID,
		RedirectURL: "https://pay.example/" + req.OrderID,
	}, nil
}

func (f *FakeGateway) GetTransactionStatus(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusQueries = append(f.StatusQueries, orderID)
	if f.StatusErr != nil {
		return "", f.StatusErr
	}
	if status, ok := f.Statuses[orderID]; ok {
		return status, nil
	}
	return "", gateway.ErrTransactionNotFound
}

func (f *FakeGateway) SetStatus(orderID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Statuses == nil {
		f.Statuses = make(map[string]string)
	}
	f.Statuses[orderID] = status
}
