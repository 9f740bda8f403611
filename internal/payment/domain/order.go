package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderIDPrefix marks order ids that belong to subscription checkouts.
const OrderIDPrefix = "SUB"

// FormatOrderID builds the gateway order id for a checkout attempt.
func FormatOrderID(subscriptionID snowflake.ID, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", OrderIDPrefix, subscriptionID.String(), at.Unix())
}

// ParseOrderID extracts the subscription id from SUB-<subscriptionID>-<unix>.
func ParseOrderID(orderID string) (snowflake.ID, error) {
	parts := strings.Split(strings.TrimSpace(orderID), "-")
	if len(parts) != 3 || parts[0] != OrderIDPrefix {
		return 0, ErrInvalidOrderID
	}
	id, err := snowflake.ParseString(parts[1])
	if err != nil || id <= 0 {
		return 0, ErrInvalidOrderID
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, ErrInvalidOrderID
	}
	return id, nil
}
