package billing

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuelReschke/BudgetFox/app/models"
)

type fakeRepository struct {
	mu       sync.Mutex
	subs     map[string]models.Subscription
	intents  map[string]models.PaymentIntent
	events   map[string]models.BillingWebhookEvent
	upserts  int
	getErr   error
	writeErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		subs:    map[string]models.Subscription{},
		intents: map[string]models.PaymentIntent{},
		events:  map[string]models.BillingWebhookEvent{},
	}
}

func (r *fakeRepository) GetSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	sub, ok := r.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *fakeRepository) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.upserts++
	r.subs[sub.UserID] = *sub
	return nil
}

func (r *fakeRepository) InsertSubscriptionIfAbsent(_ context.Context, sub *models.Subscription) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return nil, r.writeErr
	}
	if existing, ok := r.subs[sub.UserID]; ok {
		return &existing, nil
	}
	r.subs[sub.UserID] = *sub
	return sub, nil
}

func (r *fakeRepository) DeleteSubscription(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	delete(r.subs, userID)
	return nil
}

func (r *fakeRepository) CreatePaymentIntent(_ context.Context, intent *models.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[intent.MerchantTransactionID]; ok {
		return errors.New("duplicate merchant transaction id")
	}
	r.intents[intent.MerchantTransactionID] = *intent
	return nil
}

func (r *fakeRepository) GetPaymentIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return nil, nil
	}
	return &intent, nil
}

func (r *fakeRepository) UpdatePaymentIntentStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return nil
	}
	intent.Status = status
	r.intents[id] = intent
	return nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		stored.Deliveries++
		r.events[key] = stored
		return false, &stored, nil
	}
	event.ID = uint(len(r.events) + 1)
	r.events[key] = *event
	return true, event, nil
}

func (r *fakeRepository) MarkWebhookProcessed(_ context.Context, id uint, userID, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ev := range r.events {
		if ev.ID == id {
			ev.UserID = userID
			ev.ProcessingError = processingError
			r.events[key] = ev
		}
	}
	return nil
}

func (r *fakeRepository) subscription(userID string) (models.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[userID]
	return sub, ok
}

type fakeDirectory struct {
	users map[string]string
	err   error
	calls int
}

func (d *fakeDirectory) FindUserIDByEmail(_ context.Context, email string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	id, ok := d.users[email]
	if !ok {
		return "", ErrUserNotFound
	}
	return id, nil
}

type fakeMirror struct {
	mu       sync.Mutex
	entries  map[string]MirrorEntry
	writes   int
	writeErr error
	readErr  error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{entries: map[string]MirrorEntry{}}
}

func (m *fakeMirror) WriteMirror(_ context.Context, userID string, entry MirrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries[userID] = entry
	return nil
}

func (m *fakeMirror) ReadMirror(_ context.Context, userID string) (*MirrorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	entry, ok := m.entries[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *fakeMirror) DeleteMirror(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

func (m *fakeMirror) entry(userID string) (MirrorEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	return e, ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	statuses []string
}

func (n *fakeNotifier) NotifySubscriptionStatus(_ context.Context, _, status, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.statuses...)
}
