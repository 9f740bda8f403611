package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	obstracing "github.com/smallbiznis/guildpass/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"github.com/smallbiznis/guildpass/pkg/db/pagination"
)

// ResyncSubscription reconciles the Discord role with the subscription's
// status. Role failures are reported but still answer 200: the attempt and
// its outcome are in the activity log.
func (s *Server) ResyncSubscription(c *gin.Context) {
	id, err := subscriptionParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
	if actorID == "" {
		AbortWithError(c, newValidationError("actor_id", "required", "X-Actor-Id header is required"))
		return
	}

	status, err := s.entitlements.Resync(c.Request.Context(), id, actorID)
	if status == "" && err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"subscription_id": id.String(),
		"status":          string(status),
		"synced":          err == nil,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptionActivity(c *gin.Context) {
	id, err := subscriptionParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		pagination.Pagination
		Action string `form:"action"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.activitySvc.List(c.Request.Context(), activitydomain.ListRequest{
		Pagination:     query.Pagination,
		SubscriptionID: id.String(),
		Action:         strings.TrimSpace(query.Action),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// subscriptionParam reads :id and tags the request with it.
func subscriptionParam(c *gin.Context) (snowflake.ID, error) {
	id, err := parseSubscriptionID(c.Param("id"))
	if err != nil {
		return 0, err
	}
	c.Set(obstracing.KeySubscriptionID, id.String())
	return id, nil
}

func parseSubscriptionID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	return id, nil
}
