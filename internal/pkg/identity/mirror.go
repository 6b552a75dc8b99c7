package identity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
)

// MetadataKey is the public metadata key holding the subscription mirror.
const MetadataKey = "subscription"

// MetadataMirror keeps billing.MirrorEntry in the user's public metadata so
// the frontend and session tokens can read it without a database round trip.
type MetadataMirror struct {
	client *Client
}

func NewMetadataMirror(client *Client) *MetadataMirror {
	return &MetadataMirror{client: client}
}

func (m *MetadataMirror) WriteMirror(ctx context.Context, userID string, entry billing.MirrorEntry) error {
	return m.client.UpdatePublicMetadata(ctx, userID, map[string]any{MetadataKey: entry})
}

func (m *MetadataMirror) ReadMirror(ctx context.Context, userID string) (*billing.MirrorEntry, error) {
	u, err := m.client.GetUser(ctx, userID)
	if errors.Is(err, billing.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return MirrorEntryFromMetadata(u.PublicMetadata)
}

func (m *MetadataMirror) DeleteMirror(ctx context.Context, userID string) error {
	err := m.client.UpdatePublicMetadata(ctx, userID, map[string]any{MetadataKey: nil})
	if errors.Is(err, billing.ErrUserNotFound) {
		return nil
	}
	return err
}

// MirrorEntryFromMetadata decodes the mirror from a metadata map as found in
// API responses and session token claims. A missing key is (nil, nil).
func MirrorEntryFromMetadata(metadata map[string]any) (*billing.MirrorEntry, error) {
	raw, ok := metadata[MetadataKey]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var entry billing.MirrorEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
