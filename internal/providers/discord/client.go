// Package discord talks to the Discord REST API on behalf of the bot.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/providers/retry"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured     = errors.New("discord_not_configured")
	ErrForbidden         = errors.New("discord_forbidden")
	ErrNotFound          = errors.New("discord_not_found")
	ErrMissingPermission = errors.New("discord_missing_manage_roles")
)

// Client is the subset of Discord the entitlement flow relies on.
type Client interface {
	AssignRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	SendDM(ctx context.Context, userID, text string) error
	ValidateBotPermissions(ctx context.Context, guildID string) error
}

type Session struct {
	session *discordgo.Session
	policy  retry.Policy
	log     *zap.Logger

	mu    sync.Mutex
	botID string
}

// New builds a REST-only session. No gateway websocket is opened.
func New(cfg config.Config, log *zap.Logger) (Client, error) {
	token := strings.TrimSpace(cfg.Discord.BotToken)
	if token == "" {
		log.Warn("discord bot token not configured; role sync will fail until it is set")
		return disabled{}, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Client = &http.Client{Timeout: cfg.Discord.Timeout}
	// retries are driven by retry.Do so the attempt cap stays in one place
	session.MaxRestRetries = 0
	session.ShouldRetryOnRateLimit = false

	return &Session{
		session: session,
		log:     log.Named("discord"),
		policy: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Step:     cfg.Retry.Step,
			Timeout:  cfg.Discord.Timeout,
		},
	}, nil
}

func (s *Session) AssignRole(ctx context.Context, guildID, userID, roleID string) error {
	return s.do(ctx, "assign_role", func(ctx context.Context) error {
		return s.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
	})
}

func (s *Session) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return s.do(ctx, "remove_role", func(ctx context.Context) error {
		return s.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
	})
}

func (s *Session) SendDM(ctx context.Context, userID, text string) error {
	return s.do(ctx, "send_dm", func(ctx context.Context) error {
		channel, err := s.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		_, err = s.session.ChannelMessageSend(channel.ID, text, discordgo.WithContext(ctx))
		return err
	})
}

// ValidateBotPermissions confirms the bot can manage roles in guildID.
func (s *Session) ValidateBotPermissions(ctx context.Context, guildID string) error {
	return s.do(ctx, "validate_permissions", func(ctx context.Context) error {
		botID, err := s.botUserID(ctx)
		if err != nil {
			return err
		}

		guild, err := s.session.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		if guild.OwnerID == botID {
			return nil
		}

		member, err := s.session.GuildMember(guildID, botID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		roles, err := s.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}

		if !canManageRoles(guildID, member.Roles, roles) {
			return retry.Permanent(ErrMissingPermission)
		}
		return nil
	})
}

func (s *Session) botUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.botID != "" {
		return s.botID, nil
	}
	user, err := s.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	s.botID = user.ID
	return s.botID, nil
}

func (s *Session) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		attempt++
		err := classify(fn(ctx))
		if err != nil {
			s.log.Debug("discord call failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("discord %s: %w", op, err)
	}
	return nil
}

// classify maps REST failures onto sentinel errors. 403 and 404 will not
// change on retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return retry.Permanent(fmt.Errorf("%w: %s", ErrForbidden, restErr.Error()))
		case http.StatusNotFound:
			return retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, restErr.Error()))
		}
	}
	return err
}

func canManageRoles(guildID string, memberRoles []string, roles []*discordgo.Role) bool {
	held := make(map[string]struct{}, len(memberRoles)+1)
	// @everyone shares the guild id
	held[guildID] = struct{}{}
	for _, id := range memberRoles {
		held[id] = struct{}{}
	}

	var perms int64
	for _, role := range roles {
		if role == nil {
			continue
		}
		if _, ok := held[role.ID]; ok {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&discordgo.PermissionManageRoles != 0
}

type disabled struct{}

func (disabled) AssignRole(context.Context, string, string, string) error { return ErrNotConfigured }
func (disabled) RemoveRole(context.Context, string, string, string) error { return ErrNotConfigured }
func (disabled) SendDM(context.Context, string, string) error             { return ErrNotConfigured }
func (disabled) ValidateBotPermissions(context.Context, string) error     { return ErrNotConfigured }
