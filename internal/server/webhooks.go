package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obstracing "github.com/smallbiznis/guildpass/internal/observability/tracing"
	"github.com/smallbiznis/guildpass/internal/webhook"
)

const maxWebhookBody = 64 << 10

// HandlePaymentWebhook answers 200 for every delivery that reached durable
// storage, including no-ops, so the gateway only retries storage failures.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	out, err := s.orchestrator.Handle(c.Request.Context(), webhook.Delivery{
		Body:      payload,
		Signature: c.GetHeader(HeaderSignature),
	})
	if out.OrderID != "" {
		c.Set(obstracing.KeyOrderID, out.OrderID)
	}
	if out.SubscriptionID != 0 {
		c.Set(obstracing.KeySubscriptionID, out.SubscriptionID.String())
	}
	if out.Result != "" {
		c.Set(obstracing.KeyWebhookOutcome, string(out.Result))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
