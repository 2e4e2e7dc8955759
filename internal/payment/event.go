package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventPaymentSucceeded marks a completed checkout.
const EventPaymentSucceeded = "payment.succeeded"

// Event is the body of a payment notification.
type Event struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
}

// ParseEvent decodes a verified notification body.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decode payment event: %w", err)
	}
	if evt.Type == "" {
		return nil, errors.New("decode payment event: missing type")
	}
	return &evt, nil
}
