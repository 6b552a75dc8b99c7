package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"
)

// Svix envelope headers. The svix library also accepts the svix-* spelling.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

// VerifyHMACSHA256Hex checks a hex encoded HMAC-SHA256 of the raw body.
func VerifyHMACSHA256Hex(payload []byte, signatureHeader, webhookSecret string) error {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return ErrSecretNotConfigured
	}
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return ErrMissingSignatureHeaders
	}
	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return ErrInvalidSignature
	}
	if !verifyHMAC(payload, decodedSig, []byte(secret), sha256.New) {
		return ErrInvalidSignature
	}
	return nil
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// VerifySvixEnvelope verifies a Standard Webhooks/Svix signed delivery,
// including the timestamp tolerance window.
func VerifySvixEnvelope(payload []byte, headers http.Header, webhookSecret string) error {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if svixHeader(headers, HeaderWebhookID) == "" ||
		svixHeader(headers, HeaderWebhookTimestamp) == "" ||
		svixHeader(headers, HeaderWebhookSignature) == "" {
		return ErrMissingSignatureHeaders
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecretNotConfigured, err)
	}
	if err := wh.Verify(payload, headers); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func svixHeader(headers http.Header, name string) string {
	if v := headers.Get(name); v != "" {
		return v
	}
	return headers.Get("svix-" + strings.TrimPrefix(name, "webhook-"))
}

// PhonePeChecksum builds the X-VERIFY value: sha256(payload + path + saltKey) ### saltIndex.
func PhonePeChecksum(payload, path, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(payload + path + saltKey))
	return hex.EncodeToString(sum[:]) + "###" + saltIndex
}

// VerifyPhonePeChecksum checks an X-VERIFY header against the payload.
func VerifyPhonePeChecksum(payload, path, header, saltKey, saltIndex string) error {
	if strings.TrimSpace(saltKey) == "" {
		return ErrSecretNotConfigured
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignatureHeaders
	}
	expected := PhonePeChecksum(payload, path, saltKey, saltIndex)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(header)), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
