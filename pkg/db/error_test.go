package db

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestDuplicateTarget(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target string
		dup    bool
	}{
		{name: "nil", err: nil},
		{name: "gorm sentinel", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), dup: true},
		{name: "postgres", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_transactions_gateway_order_id" (SQLSTATE 23505)`), target: "ux_transactions_gateway_order_id", dup: true},
		{name: "mysql", err: errors.New(`Error 1062 (23000): Duplicate entry 'SUB-1-1' for key 'transactions.ux_transactions_gateway_order_id'`), target: "transactions.ux_transactions_gateway_order_id", dup: true},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: subscriptions.member_id, subscriptions.server_id (2067)"), target: "subscriptions.member_id, subscriptions.server_id", dup: true},
		{name: "other", err: errors.New("connection reset")},
		{name: "unrelated key wording", err: errors.New("missing value for key name")},
	}
	for _, tc := range cases {
		target, dup := DuplicateTarget(tc.err)
		if dup != tc.dup || target != tc.target {
			t.Fatalf("%s: got (%q, %v) want (%q, %v)", tc.name, target, dup, tc.target, tc.dup)
		}
		if IsDuplicateKeyErr(tc.err) != tc.dup {
			t.Fatalf("%s: IsDuplicateKeyErr disagrees", tc.name)
		}
	}
}

func TestIsDuplicateOn(t *testing.T) {
	active := errors.New("UNIQUE constraint failed: subscriptions.member_id, subscriptions.server_id")
	if !IsDuplicateOn(active, "ux_subscriptions_active_member_server", "subscriptions.member_id") {
		t.Fatalf("expected match on the sqlite column list")
	}
	if IsDuplicateOn(active, "ux_transactions_gateway_order_id", "transactions.gateway_order_id") {
		t.Fatalf("order id key must not match a subscription violation")
	}
	if !IsDuplicateOn(gorm.ErrDuplicatedKey, "anything") {
		t.Fatalf("a translated violation has no target and matches")
	}
	if IsDuplicateOn(errors.New("timeout"), "anything") {
		t.Fatalf("non-duplicate errors never match")
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
