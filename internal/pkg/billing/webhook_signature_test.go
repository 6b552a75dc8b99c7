package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

const testSvixSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func svixHeaders(t *testing.T, payload []byte, ts time.Time) http.Header {
	t.Helper()
	wh, err := svix.NewWebhook(testSvixSecret)
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}
	sig, err := wh.Sign("msg_1", ts, payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := http.Header{}
	h.Set(HeaderWebhookID, "msg_1")
	h.Set(HeaderWebhookTimestamp, strconv.FormatInt(ts.Unix(), 10))
	h.Set(HeaderWebhookSignature, sig)
	return h
}

func signHex(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMACSHA256Hex(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)
	secret := "top-secret"
	valid := signHex(payload, secret)

	if err := VerifyHMACSHA256Hex(payload, valid, secret); err != nil {
		t.Fatalf("expected signature to validate, got %v", err)
	}
	if err := VerifyHMACSHA256Hex(payload, "deadbeef", secret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if err := VerifyHMACSHA256Hex(payload, "not-hex", secret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for non-hex header, got %v", err)
	}
	if err := VerifyHMACSHA256Hex(append(payload, ' '), valid, secret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered body to fail, got %v", err)
	}
	if err := VerifyHMACSHA256Hex(payload, "", secret); !errors.Is(err, ErrMissingSignatureHeaders) {
		t.Fatalf("expected missing header error, got %v", err)
	}
	if err := VerifyHMACSHA256Hex(payload, valid, ""); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected unconfigured secret to fail closed, got %v", err)
	}
}

func TestVerifySvixEnvelope(t *testing.T) {
	payload := []byte(`{"type":"subscription.active","data":{}}`)
	headers := svixHeaders(t, payload, time.Now())

	if err := VerifySvixEnvelope(payload, headers, testSvixSecret); err != nil {
		t.Fatalf("expected envelope to verify, got %v", err)
	}
	if err := VerifySvixEnvelope([]byte(`{"type":"subscription.cancelled","data":{}}`), headers, testSvixSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered payload to fail, got %v", err)
	}
	if err := VerifySvixEnvelope(payload, headers, ""); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected unconfigured secret to fail closed, got %v", err)
	}
}

func TestVerifySvixEnvelope_MissingHeaders(t *testing.T) {
	payload := []byte(`{}`)
	for _, missing := range []string{HeaderWebhookID, HeaderWebhookTimestamp, HeaderWebhookSignature} {
		headers := svixHeaders(t, payload, time.Now())
		headers.Del(missing)
		if err := VerifySvixEnvelope(payload, headers, testSvixSecret); !errors.Is(err, ErrMissingSignatureHeaders) {
			t.Fatalf("expected missing %s to be rejected, got %v", missing, err)
		}
	}
}

func TestVerifySvixEnvelope_StaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	headers := svixHeaders(t, payload, time.Now().Add(-time.Hour))
	if err := VerifySvixEnvelope(payload, headers, testSvixSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected stale timestamp to fail, got %v", err)
	}
}

func TestPhonePeChecksum(t *testing.T) {
	// sha256("abc" + "/pg/v1/pay" + "salt")
	sum := PhonePeChecksum("abc", "/pg/v1/pay", "salt", "1")
	if len(sum) != 64+4 || sum[64:] != "###1" {
		t.Fatalf("unexpected checksum format %q", sum)
	}
	if err := VerifyPhonePeChecksum("abc", "/pg/v1/pay", sum, "salt", "1"); err != nil {
		t.Fatalf("expected checksum to verify, got %v", err)
	}
	if err := VerifyPhonePeChecksum("abd", "/pg/v1/pay", sum, "salt", "1"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered payload to fail, got %v", err)
	}
	if err := VerifyPhonePeChecksum("abc", "/pg/v1/pay", sum, "salt", "2"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected wrong salt index to fail, got %v", err)
	}
	if err := VerifyPhonePeChecksum("abc", "/pg/v1/pay", sum, "", "1"); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected missing salt key to fail closed, got %v", err)
	}
	if err := VerifyPhonePeChecksum("abc", "/pg/v1/pay", "", "salt", "1"); !errors.Is(err, ErrMissingSignatureHeaders) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: ErrInvalidSignature, want: http.StatusBadRequest},
		{err: ErrMissingSignatureHeaders, want: http.StatusBadRequest},
		{err: ErrSecretNotConfigured, want: http.StatusBadRequest},
		{err: ErrMalformedPayload, want: http.StatusBadRequest},
		{err: ErrNotApplicable, want: http.StatusOK},
		{err: ErrUnresolvedUser, want: http.StatusOK},
		{err: ErrTransientStore, want: http.StatusInternalServerError},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForError(tt.err); got != tt.want {
			t.Fatalf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
