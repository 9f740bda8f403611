package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/activity/repository"
	activityservice "github.com/smallbiznis/guildpass/internal/activity/service"
	"github.com/smallbiznis/guildpass/internal/clock"
	obscontext "github.com/smallbiznis/guildpass/internal/observability/context"
	"github.com/smallbiznis/guildpass/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) (activitydomain.Service, *clock.FakeClock) {
	t.Helper()

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC))

	svc := activityservice.NewService(activityservice.Params{
		DB:    dbtest.Open(t),
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, _ := newService(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-9")

	err := svc.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: snowflake.ID(100),
		Action:         activitydomain.ActionRoleGranted,
		Details:        map[string]any{"role_id": "r1"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), activitydomain.ListRequest{SubscriptionID: "100"})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)

	entry := resp.Entries[0]
	assert.Equal(t, activitydomain.ActorTypeSystem, entry.ActorType)
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, "r1", entry.Details["role_id"])
	assert.Equal(t, "req-9", entry.Details["request_id"])
}

func TestRecordUsesActorFromContext(t *testing.T) {
	svc, _ := newService(t)
	ctx := obscontext.WithActor(context.Background(), string(activitydomain.ActorTypeServerOwner), "owner-1")

	require.NoError(t, svc.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: snowflake.ID(100),
		Action:         activitydomain.ActionManualResync,
	}))

	resp, err := svc.List(context.Background(), activitydomain.ListRequest{SubscriptionID: "100"})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, activitydomain.ActorTypeServerOwner, resp.Entries[0].ActorType)
	require.NotNil(t, resp.Entries[0].ActorID)
	assert.Equal(t, "owner-1", *resp.Entries[0].ActorID)
}

func TestRecordValidatesInput(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Record(context.Background(), activitydomain.RecordRequest{SubscriptionID: 1})
	assert.True(t, errors.Is(err, activitydomain.ErrInvalidAction))

	err = svc.Record(context.Background(), activitydomain.RecordRequest{Action: "role_granted"})
	assert.True(t, errors.Is(err, activitydomain.ErrInvalidSubscription))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	for _, action := range []string{"first", "second", "third"} {
		require.NoError(t, svc.Record(ctx, activitydomain.RecordRequest{SubscriptionID: 100, Action: action}))
		clk.Advance(time.Minute)
	}

	req := activitydomain.ListRequest{SubscriptionID: "100"}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "third", page.Entries[0].Action)
	assert.Equal(t, "second", page.Entries[1].Action)

	req.PageToken = page.NextPageToken
	page, err = svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, "first", page.Entries[0].Action)
}

func TestListRejectsBadPageToken(t *testing.T) {
	svc, _ := newService(t)
	req := activitydomain.ListRequest{SubscriptionID: "100"}
	req.PageToken = "not-a-token"

	_, err := svc.List(context.Background(), req)
	assert.True(t, errors.Is(err, activitydomain.ErrInvalidPageToken))
}
