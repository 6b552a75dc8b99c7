package billing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PhonePe payment states and response codes.
const (
	phonePeStateCompleted = "COMPLETED"
	phonePeStateFailed    = "FAILED"
	phonePeStatePending   = "PENDING"
	phonePeCodeSuccess    = "PAYMENT_SUCCESS"
)

var phonePeFailureCodes = map[string]struct{}{
	"PAYMENT_ERROR":         {},
	"PAYMENT_DECLINED":      {},
	"TIMED_OUT":             {},
	"TRANSACTION_NOT_FOUND": {},
}

// PhonePeCallback is the JSON envelope PhonePe posts to the callback URL.
type PhonePeCallback struct {
	Response string `json:"response"`
}

// PhonePeResponse is shared by decoded callbacks and status-check responses.
type PhonePeResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// ParsePhonePeCallback extracts the signed response field from a callback body.
// The X-VERIFY checksum is computed over this field, not the whole body.
func ParsePhonePeCallback(payload []byte) (string, error) {
	var cb PhonePeCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(cb.Response) == "" {
		return "", fmt.Errorf("%w: empty response field", ErrMalformedPayload)
	}
	return cb.Response, nil
}

// PhonePeNormalizer reads PhonePe server-to-server callbacks. Callbacks carry
// no email, so the user is resolved through the stored payment intent.
type PhonePeNormalizer struct{}

func (PhonePeNormalizer) Provider() Provider { return ProviderPhonePe }

func (n PhonePeNormalizer) Normalize(payload []byte, meta DeliveryMeta) (*SubscriptionEvent, error) {
	encoded, err := ParsePhonePeCallback(payload)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: response is not base64: %v", ErrMalformedPayload, err)
	}
	return n.NormalizeStatus(decoded)
}

// NormalizeStatus maps a decoded callback or a status-check response.
func (PhonePeNormalizer) NormalizeStatus(raw []byte) (*SubscriptionEvent, error) {
	var resp PhonePeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	state := strings.ToUpper(strings.TrimSpace(resp.Data.State))
	code := strings.ToUpper(strings.TrimSpace(resp.Code))

	ev := &SubscriptionEvent{
		Provider:   ProviderPhonePe,
		EventID:    firstNonEmpty(resp.Data.TransactionID, resp.Data.MerchantTransactionID),
		EventType:  firstNonEmpty(state, code),
		PaymentRef: strings.TrimSpace(resp.Data.MerchantTransactionID),
		PaymentID:  strings.TrimSpace(resp.Data.TransactionID),
		OccurredAt: time.Now().UTC(),
	}

	switch {
	case state == phonePeStateCompleted || (state == "" && code == phonePeCodeSuccess):
		ev.Action = ActionActivate
		ev.PaymentState = PaymentStateCompleted
		ev.DerivePeriod = true
	case state == phonePeStateFailed || isPhonePeFailureCode(code):
		// A failed one-off payment must not revoke a subscription paid elsewhere.
		ev.Action = ActionIgnore
		ev.PaymentState = PaymentStateFailed
	case state == phonePeStatePending:
		ev.Action = ActionIgnore
		ev.PaymentState = PaymentStatePending
	default:
		ev.Action = ActionIgnore
	}
	if ev.PaymentRef == "" && ev.Action != ActionIgnore {
		return ev, fmt.Errorf("%w: phonepe response without merchant transaction id", ErrNotApplicable)
	}
	return finishEvent(ev, raw)
}

func isPhonePeFailureCode(code string) bool {
	_, ok := phonePeFailureCodes[code]
	return ok
}
