package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obstracing "github.com/smallbiznis/guildpass/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
)

func (s *Server) Checkout(c *gin.Context) {
	var req subscriptiondomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Checkout(c.Request.Context(), subscriptiondomain.CheckoutRequest{
		MemberID: strings.TrimSpace(req.MemberID),
		TierID:   strings.TrimSpace(req.TierID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obstracing.KeyOrderID, resp.OrderID)
	c.Set(obstracing.KeySubscriptionID, resp.SubscriptionID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
