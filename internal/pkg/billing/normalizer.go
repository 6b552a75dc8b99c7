package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Normalizer turns one provider's verified payload into a SubscriptionEvent.
// Unknown event names come back with ActionIgnore and no error.
type Normalizer interface {
	Provider() Provider
	Normalize(payload []byte, meta DeliveryMeta) (*SubscriptionEvent, error)
}

// PlanResolver maps provider product or variant ids to an internal plan.
type PlanResolver func(ids ...string) string

// Normalizers is the provider registry used by the webhook handlers.
type Normalizers map[Provider]Normalizer

func NewNormalizers(list ...Normalizer) Normalizers {
	out := make(Normalizers, len(list))
	for _, n := range list {
		out[n.Provider()] = n
	}
	return out
}

func (n Normalizers) Normalize(provider Provider, payload []byte, meta DeliveryMeta) (*SubscriptionEvent, error) {
	normalizer, ok := n[provider]
	if !ok {
		return nil, fmt.Errorf("no normalizer registered for provider %q", provider)
	}
	return normalizer.Normalize(payload, meta)
}

// payloadEventID is the fallback event id for providers without one.
func payloadEventID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// finishEvent applies the rules shared by every provider once the
// provider-specific fields are filled in.
func finishEvent(ev *SubscriptionEvent, payload []byte) (*SubscriptionEvent, error) {
	ev.EventID = strings.TrimSpace(ev.EventID)
	if ev.EventID == "" {
		ev.EventID = payloadEventID(payload)
	}
	ev.Email = strings.ToLower(strings.TrimSpace(ev.Email))
	ev.UserID = strings.TrimSpace(ev.UserID)
	if ev.Action == ActionIgnore {
		return ev, nil
	}
	if !ev.HasUserReference() {
		return ev, fmt.Errorf("%w: %s event %q carries no email or user reference", ErrNotApplicable, ev.Provider, ev.EventType)
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// flexString accepts ids that providers send either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// customData is the free-form metadata the checkout attaches to an order.
type customData map[string]any

func (c customData) value(key string) string {
	if c == nil {
		return ""
	}
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func (c customData) userID() string {
	return firstNonEmpty(c.value("user_id"), c.value("userId"), c.value("clerk_user_id"))
}
