package identity

import (
	"encoding/json"
	"fmt"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// UserEvent is an identity provider webhook about a user account.
type UserEvent struct {
	Type string `json:"type"`
	Data struct {
		User
		Deleted bool `json:"deleted"`
	} `json:"data"`
}

// ParseUserEvent decodes a verified identity webhook payload.
func ParseUserEvent(payload []byte) (*UserEvent, error) {
	var ev UserEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrMalformedPayload, err)
	}
	if ev.Type == "" || ev.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing type or user id", billing.ErrMalformedPayload)
	}
	return &ev, nil
}
