package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/clock"
	obscontext "github.com/smallbiznis/guildpass/internal/observability/context"
	"github.com/smallbiznis/guildpass/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  activitydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  activitydomain.Repository
}

func NewService(p Params) activitydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req activitydomain.RecordRequest) error {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return activitydomain.ErrInvalidAction
	}
	if req.SubscriptionID == 0 {
		return activitydomain.ErrInvalidSubscription
	}

	actorType, actorID := s.resolveActor(ctx, req.ActorType, req.ActorID)

	details := map[string]any{}
	for key, value := range req.Details {
		if key == "" {
			continue
		}
		details[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		details["request_id"] = requestID
	}

	entry := activitydomain.Entry{
		ID:             s.genID.Generate(),
		SubscriptionID: req.SubscriptionID,
		ActorType:      actorType,
		ActorID:        actorID,
		Action:         action,
		Details:        datatypes.JSONMap(details),
		CreatedAt:      s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write activity log",
			zap.String("action", action),
			zap.String("subscription_id", req.SubscriptionID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req activitydomain.ListRequest) (activitydomain.ListResponse, error) {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(req.SubscriptionID))
	if err != nil || subscriptionID == 0 {
		return activitydomain.ListResponse{}, activitydomain.ErrInvalidSubscription
	}

	var cursor *activitydomain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return activitydomain.ListResponse{}, activitydomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return activitydomain.ListResponse{}, activitydomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return activitydomain.ListResponse{}, activitydomain.ErrInvalidPageToken
		}
		cursor = &activitydomain.Cursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, activitydomain.ListFilter{
		SubscriptionID: subscriptionID,
		Action:         req.Action,
		Cursor:         cursor,
		Limit:          pageSize,
	})
	if err != nil {
		return activitydomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *activitydomain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]activitydomain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	return activitydomain.ListResponse{PageInfo: *pageInfo, Entries: entries}, nil
}

func (s *Service) resolveActor(ctx context.Context, actorType activitydomain.ActorType, actorID string) (activitydomain.ActorType, *string) {
	if actorType == "" {
		if ctxType, ctxID := obscontext.ActorFromContext(ctx); ctxType != "" {
			actorType = activitydomain.ActorType(ctxType)
			if strings.TrimSpace(actorID) == "" {
				actorID = ctxID
			}
		}
	}
	if actorType == "" {
		actorType = activitydomain.ActorTypeSystem
	}

	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return actorType, nil
	}
	return actorType, &actorID
}
