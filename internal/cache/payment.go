package cache

import (
	"context"
	"fmt"
	"time"
)

// PaymentEventTTL covers the provider's redelivery horizon.
const PaymentEventTTL = 72 * time.Hour

func paymentEventKey(eventID string) string {
	return key("payment", "event", eventID)
}

// ClaimPaymentEvent records eventID as being processed. It returns false
// when the event was already claimed by an earlier delivery.
func (c *Cache) ClaimPaymentEvent(ctx context.Context, eventID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, paymentEventKey(eventID), time.Now().Unix(), PaymentEventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim payment event: %w", err)
	}
	return ok, nil
}

// ReleasePaymentEvent forgets a claim so a redelivery can be processed
// after a failure.
func (c *Cache) ReleasePaymentEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, paymentEventKey(eventID)).Err()
}
