// Package entitlement keeps Discord role membership in line with
// subscription status. Role calls are best-effort: failures are written to the
// activity log for follow-up and never roll back subscription state.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	obscontext "github.com/smallbiznis/guildpass/internal/observability/context"
	"github.com/smallbiznis/guildpass/internal/providers/discord"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrPrecheckFailed = errors.New("bot_permission_precheck_failed")
	ErrInvalidTarget  = errors.New("invalid_entitlement_target")
)

// Target identifies one role on one guild member.
type Target struct {
	SubscriptionID snowflake.ID
	GuildID        string
	DiscordUserID  string
	RoleID         string
}

// TargetFor builds the role target of a subscription detail.
func TargetFor(detail subscriptiondomain.SubscriptionDetail) Target {
	return Target{
		SubscriptionID: detail.Subscription.ID,
		GuildID:        detail.Server.DiscordGuildID,
		DiscordUserID:  detail.Member.DiscordUserID,
		RoleID:         detail.Tier.DiscordRoleID,
	}
}

func (t Target) valid() bool {
	return t.SubscriptionID != 0 &&
		strings.TrimSpace(t.GuildID) != "" &&
		strings.TrimSpace(t.DiscordUserID) != "" &&
		strings.TrimSpace(t.RoleID) != ""
}

func (t Target) fields() []zap.Field {
	return []zap.Field{
		zap.String("subscription_id", t.SubscriptionID.String()),
		zap.String("guild_id", t.GuildID),
		zap.String("discord_user_id", t.DiscordUserID),
		zap.String("role_id", t.RoleID),
	}
}

type Params struct {
	fx.In

	Log           *zap.Logger
	Discord       discord.Client
	Activity      activitydomain.Service
	Subscriptions subscriptiondomain.Service
}

type Synchronizer struct {
	log           *zap.Logger
	discord       discord.Client
	activity      activitydomain.Service
	subscriptions subscriptiondomain.Service
}

func NewSynchronizer(p Params) *Synchronizer {
	return &Synchronizer{
		log:           p.Log.Named("entitlement.synchronizer"),
		discord:       p.Discord,
		activity:      p.Activity,
		subscriptions: p.Subscriptions,
	}
}

// Grant assigns the role after confirming the bot can still manage roles in
// the guild. A failed precheck skips the assign call entirely.
func (s *Synchronizer) Grant(ctx context.Context, target Target, details map[string]any) error {
	if !target.valid() {
		return ErrInvalidTarget
	}

	if err := s.discord.ValidateBotPermissions(ctx, target.GuildID); err != nil {
		s.log.Warn("bot permission precheck failed", append(target.fields(), zap.Error(err))...)
		s.record(ctx, target, activitydomain.ActionRoleAssignmentFailed, details, map[string]any{
			"stage": "precheck",
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrPrecheckFailed, err)
	}

	if err := s.discord.AssignRole(ctx, target.GuildID, target.DiscordUserID, target.RoleID); err != nil {
		s.log.Warn("role assignment failed", append(target.fields(), zap.Error(err))...)
		s.record(ctx, target, activitydomain.ActionRoleAssignmentFailed, details, map[string]any{
			"stage": "assign",
			"error": err.Error(),
		})
		return err
	}

	s.log.Info("role granted", target.fields()...)
	s.record(ctx, target, activitydomain.ActionRoleGranted, details, nil)
	return nil
}

// Revoke removes the role. A member or role Discord no longer knows about is
// treated as already revoked.
func (s *Synchronizer) Revoke(ctx context.Context, target Target, details map[string]any) error {
	if !target.valid() {
		return ErrInvalidTarget
	}

	err := s.discord.RemoveRole(ctx, target.GuildID, target.DiscordUserID, target.RoleID)
	switch {
	case err == nil:
	case errors.Is(err, discord.ErrNotFound):
		s.log.Info("role already absent", append(target.fields(), zap.Error(err))...)
		s.record(ctx, target, activitydomain.ActionRoleRevoked, details, map[string]any{"already_absent": true})
		return nil
	default:
		s.log.Warn("role removal failed", append(target.fields(), zap.Error(err))...)
		s.record(ctx, target, activitydomain.ActionRoleRemovalFailed, details, map[string]any{
			"error": err.Error(),
		})
		return err
	}

	s.log.Info("role revoked", target.fields()...)
	s.record(ctx, target, activitydomain.ActionRoleRevoked, details, nil)
	return nil
}

// Resync reconciles the role with the subscription's current status on an
// operator's request: Active grants, anything else revokes.
func (s *Synchronizer) Resync(ctx context.Context, subscriptionID snowflake.ID, actorID string) (subscriptiondomain.SubscriptionStatus, error) {
	detail, err := s.subscriptions.GetDetail(ctx, subscriptionID)
	if err != nil {
		return "", err
	}

	ctx = obscontext.WithActor(ctx, string(activitydomain.ActorTypeServerOwner), actorID)
	target := TargetFor(*detail)
	status := detail.Subscription.Status

	operation := "revoke"
	if status == subscriptiondomain.SubscriptionStatusActive {
		operation = "grant"
	}
	s.record(ctx, target, activitydomain.ActionManualResync, nil, map[string]any{
		"status":    string(status),
		"operation": operation,
	})

	details := map[string]any{"trigger": "manual_resync"}
	if operation == "grant" {
		return status, s.Grant(ctx, target, details)
	}
	return status, s.Revoke(ctx, target, details)
}

func (s *Synchronizer) record(ctx context.Context, target Target, action string, base, extra map[string]any) {
	if s.activity == nil {
		return
	}

	details := map[string]any{
		"guild_id":        target.GuildID,
		"discord_user_id": target.DiscordUserID,
		"role_id":         target.RoleID,
	}
	for k, v := range base {
		details[k] = v
	}
	for k, v := range extra {
		details[k] = v
	}

	err := s.activity.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: target.SubscriptionID,
		Action:         action,
		Details:        details,
	})
	if err != nil {
		s.log.Warn("failed to record activity",
			zap.String("subscription_id", target.SubscriptionID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
