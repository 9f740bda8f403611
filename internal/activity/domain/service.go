package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guildpass/pkg/db/pagination"
)

type RecordRequest struct {
	SubscriptionID snowflake.ID
	ActorType      ActorType
	ActorID        string
	Action         string
	Details        map[string]any
}

type ListRequest struct {
	pagination.Pagination
	SubscriptionID string
	Action         string
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidSubscription = errors.New("invalid_subscription")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
