package billing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
)

const (
	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"
	maxPhonePeBody    = 1 << 20
)

// PhonePeClient calls the PhonePe PG API with checksum-signed requests.
type PhonePeClient struct {
	cfg        config.PhonePeConfig
	httpClient *http.Client
	metrics    Metrics
}

func NewPhonePeClient(cfg config.PhonePeConfig, metrics Metrics) *PhonePeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &PhonePeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
	}
}

// Configured reports whether merchant credentials are present.
func (c *PhonePeClient) Configured() bool {
	return c.cfg.MerchantID != "" && c.cfg.SaltKey != ""
}

// PaymentRequest describes a one-off PhonePe checkout.
type PaymentRequest struct {
	MerchantTransactionID string
	MerchantUserID        string
	AmountPaise           int64
}

type phonePePayPayload struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	MerchantUserID        string `json:"merchantUserId"`
	Amount                int64  `json:"amount"`
	RedirectURL           string `json:"redirectUrl"`
	RedirectMode          string `json:"redirectMode"`
	CallbackURL           string `json:"callbackUrl"`
	PaymentInstrument     struct {
		Type string `json:"type"`
	} `json:"paymentInstrument"`
}

type phonePePayResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// InitiatePayment creates a pay-page session and returns the hosted checkout URL.
func (c *PhonePeClient) InitiatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	if !c.Configured() {
		return "", ErrSecretNotConfigured
	}
	payload := phonePePayPayload{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: req.MerchantTransactionID,
		MerchantUserID:        req.MerchantUserID,
		Amount:                req.AmountPaise,
		RedirectURL:           c.cfg.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           c.cfg.CallbackURL,
	}
	payload.PaymentInstrument.Type = "PAY_PAGE"

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+phonePePayPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", PhonePeChecksum(encoded, phonePePayPath, c.cfg.SaltKey, c.cfg.SaltIndex))

	respBody, err := c.do(httpReq, "pay")
	if err != nil {
		return "", err
	}
	var out phonePePayResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: decode pay response: %v", ErrProviderAPI, err)
	}
	redirect := strings.TrimSpace(out.Data.InstrumentResponse.RedirectInfo.URL)
	if !out.Success || redirect == "" {
		return "", fmt.Errorf("%w: pay request rejected: %s %s", ErrProviderAPI, out.Code, out.Message)
	}
	return redirect, nil
}

// CheckStatus fetches the terminal state of a transaction. The raw body is
// returned so it can go through PhonePeNormalizer.NormalizeStatus.
func (c *PhonePeClient) CheckStatus(ctx context.Context, merchantTransactionID string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrSecretNotConfigured
	}
	path := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, url.PathEscape(c.cfg.MerchantID), url.PathEscape(merchantTransactionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+path, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", PhonePeChecksum("", path, c.cfg.SaltKey, c.cfg.SaltIndex))
	httpReq.Header.Set("X-MERCHANT-ID", c.cfg.MerchantID)

	return c.do(httpReq, "status")
}

func (c *PhonePeClient) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordProviderAPICall(string(ProviderPhonePe), endpoint, "error", time.Since(start))
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderAPI, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordProviderAPICall(string(ProviderPhonePe), endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPhonePeBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrProviderAPI, err)
	}
	// PhonePe answers declined or unknown transactions with 4xx and a JSON body.
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: phonepe %s returned %d", ErrProviderAPI, endpoint, resp.StatusCode)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
