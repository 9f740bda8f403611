package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	activityrepo "github.com/smallbiznis/guildpass/internal/activity/repository"
	activityservice "github.com/smallbiznis/guildpass/internal/activity/service"
	"github.com/smallbiznis/guildpass/internal/clock"
	"github.com/smallbiznis/guildpass/internal/providers/discord"
	"github.com/smallbiznis/guildpass/internal/providers/providertest"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"github.com/smallbiznis/guildpass/pkg/db/dbtest"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type stubSubscriptions struct {
	subscriptiondomain.Service
	detail *subscriptiondomain.SubscriptionDetail
}

func (s *stubSubscriptions) GetDetail(ctx context.Context, id snowflake.ID) (*subscriptiondomain.SubscriptionDetail, error) {
	if s.detail == nil || s.detail.Subscription.ID != id {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return s.detail, nil
}

func newSynchronizer(t *testing.T, fake *providertest.FakeDiscord, subs subscriptiondomain.Service) (*Synchronizer, *gorm.DB) {
	t.Helper()

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	log := zaptest.NewLogger(t)
	activity := activityservice.NewService(activityservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)),
		Repo:  activityrepo.Provide(),
	})

	return NewSynchronizer(Params{
		Log:           log,
		Discord:       fake,
		Activity:      activity,
		Subscriptions: subs,
	}), conn
}

var target = Target{
	SubscriptionID: snowflake.ID(1),
	GuildID:        "guild-1",
	DiscordUserID:  "user-1",
	RoleID:         "role-1",
}

func TestGrantAssignsRoleAndLogs(t *testing.T) {
	fake := &providertest.FakeDiscord{}
	sync, conn := newSynchronizer(t, fake, nil)

	if err := sync.Grant(context.Background(), target, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if fake.AssignedCount() != 1 {
		t.Fatalf("expected one assign call, got %d", fake.AssignedCount())
	}
	if got := dbtest.Count(t, conn, "activity_logs", "action = ?", "role_granted"); got != 1 {
		t.Fatalf("expected role_granted entry, got %d", got)
	}
}

func TestGrantSkipsAssignWhenPrecheckFails(t *testing.T) {
	fake := &providertest.FakeDiscord{PermissionErr: discord.ErrMissingPermission}
	sync, conn := newSynchronizer(t, fake, nil)

	err := sync.Grant(context.Background(), target, nil)
	if !errors.Is(err, ErrPrecheckFailed) {
		t.Fatalf("expected ErrPrecheckFailed, got %v", err)
	}
	if fake.AssignedCount() != 0 {
		t.Fatalf("assign must not be attempted after a failed precheck")
	}
	if got := dbtest.Count(t, conn, "activity_logs", "action = ?", "role_assignment_failed"); got != 1 {
		t.Fatalf("expected role_assignment_failed entry, got %d", got)
	}
}

func TestGrantRecordsAssignFailure(t *testing.T) {
	fake := &providertest.FakeDiscord{AssignErr: discord.ErrForbidden}
	sync, conn := newSynchronizer(t, fake, nil)

	if err := sync.Grant(context.Background(), target, nil); !errors.Is(err, discord.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if got := dbtest.Count(t, conn, "activity_logs", "action = ?", "role_assignment_failed"); got != 1 {
		t.Fatalf("expected role_assignment_failed entry, got %d", got)
	}
}

func TestRevokeTreatsNotFoundAsRevoked(t *testing.T) {
	fake := &providertest.FakeDiscord{RemoveErr: discord.ErrNotFound}
	sync, conn := newSynchronizer(t, fake, nil)

	if err := sync.Revoke(context.Background(), target, nil); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := dbtest.Count(t, conn, "activity_logs", "action = ?", "role_revoked"); got != 1 {
		t.Fatalf("expected role_revoked entry, got %d", got)
	}
}

func TestRevokeRecordsFailure(t *testing.T) {
	fake := &providertest.FakeDiscord{RemoveErr: errors.New("timeout")}
	sync, conn := newSynchronizer(t, fake, nil)

	if err := sync.Revoke(context.Background(), target, nil); err == nil {
		t.Fatalf("expected error")
	}
	if got := dbtest.Count(t, conn, "activity_logs", "action = ?", "role_removal_failed"); got != 1 {
		t.Fatalf("expected role_removal_failed entry, got %d", got)
	}
}

func TestResyncAttributesToOwner(t *testing.T) {
	fake := &providertest.FakeDiscord{}
	subs := &stubSubscriptions{detail: &subscriptiondomain.SubscriptionDetail{
		Subscription: subscriptiondomain.Subscription{ID: 1, Status: subscriptiondomain.SubscriptionStatusExpired},
		Tier:         subscriptiondomain.Tier{DiscordRoleID: "role-1"},
		Server:       subscriptiondomain.Server{DiscordGuildID: "guild-1"},
		Member:       subscriptiondomain.Member{DiscordUserID: "user-1"},
	}}
	sync, conn := newSynchronizer(t, fake, subs)

	status, err := sync.Resync(context.Background(), snowflake.ID(1), "owner-7")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if status != subscriptiondomain.SubscriptionStatusExpired {
		t.Fatalf("unexpected status %s", status)
	}
	if fake.RemovedCount() != 1 || fake.AssignedCount() != 0 {
		t.Fatalf("expired subscription should only revoke: removed=%d assigned=%d", fake.RemovedCount(), fake.AssignedCount())
	}
	got := dbtest.Count(t, conn, "activity_logs", "action = ? AND actor_type = ? AND actor_id = ?", "manual_resync", "server_owner", "owner-7")
	if got != 1 {
		t.Fatalf("expected owner-attributed manual_resync entry, got %d", got)
	}
	if got := dbtest.Count(t, conn, "activity_logs", "action = ? AND actor_type = ?", "role_revoked", "server_owner"); got != 1 {
		t.Fatalf("expected owner-attributed role_revoked entry, got %d", got)
	}
}

func TestResyncUnknownSubscription(t *testing.T) {
	sync, _ := newSynchronizer(t, &providertest.FakeDiscord{}, &stubSubscriptions{})
	if _, err := sync.Resync(context.Background(), snowflake.ID(9), "owner"); !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
