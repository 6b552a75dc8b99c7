package controllers

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuelReschke/BudgetFox/app/models"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

type memoryRepository struct {
	mu       sync.Mutex
	subs     map[string]models.Subscription
	intents  map[string]models.PaymentIntent
	events   []models.BillingWebhookEvent
	writeErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		subs:    map[string]models.Subscription{},
		intents: map[string]models.PaymentIntent{},
	}
}

func (r *memoryRepository) GetSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *memoryRepository) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.subs[sub.UserID] = *sub
	return nil
}

func (r *memoryRepository) InsertSubscriptionIfAbsent(_ context.Context, sub *models.Subscription) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.subs[sub.UserID]; ok {
		return &existing, nil
	}
	r.subs[sub.UserID] = *sub
	return sub, nil
}

func (r *memoryRepository) DeleteSubscription(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, userID)
	return nil
}

func (r *memoryRepository) CreatePaymentIntent(_ context.Context, intent *models.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[intent.MerchantTransactionID]; ok {
		return errors.New("duplicate merchant transaction id")
	}
	r.intents[intent.MerchantTransactionID] = *intent
	return nil
}

func (r *memoryRepository) GetPaymentIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return nil, nil
	}
	return &intent, nil
}

func (r *memoryRepository) UpdatePaymentIntentStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if intent, ok := r.intents[id]; ok {
		intent.Status = status
		r.intents[id] = intent
	}
	return nil
}

func (r *memoryRepository) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].Provider == event.Provider && r.events[i].ProviderEventID == event.ProviderEventID {
			r.events[i].Deliveries++
			stored := r.events[i]
			return false, &stored, nil
		}
	}
	event.ID = uint(len(r.events) + 1)
	r.events = append(r.events, *event)
	return true, event, nil
}

func (r *memoryRepository) MarkWebhookProcessed(_ context.Context, id uint, userID, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].UserID = userID
			r.events[i].ProcessingError = processingError
		}
	}
	return nil
}

func (r *memoryRepository) subscription(userID string) (models.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[userID]
	return sub, ok
}

func (r *memoryRepository) ledger() []models.BillingWebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BillingWebhookEvent(nil), r.events...)
}

type memoryMirror struct {
	mu      sync.Mutex
	entries map[string]billing.MirrorEntry
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{entries: map[string]billing.MirrorEntry{}}
}

func (m *memoryMirror) WriteMirror(_ context.Context, userID string, entry billing.MirrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = entry
	return nil
}

func (m *memoryMirror) ReadMirror(_ context.Context, userID string) (*billing.MirrorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *memoryMirror) DeleteMirror(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

type staticDirectory map[string]string

func (d staticDirectory) FindUserIDByEmail(_ context.Context, email string) (string, error) {
	if id, ok := d[email]; ok {
		return id, nil
	}
	return "", billing.ErrUserNotFound
}

type forgetLog struct {
	emails []string
}

func (f *forgetLog) ForgetEmail(_ context.Context, email string) {
	f.emails = append(f.emails, email)
}

const (
	testLemonSecret    = "lemon-secret"
	testSvixSecret     = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
	testPhonePeSalt    = "salt-key"
	testPhonePeSaltIdx = "1"
)

func testConfig() config.Config {
	return config.Config{
		Identity: config.IdentityConfig{WebhookSecret: testSvixSecret},
		Billing: config.BillingConfig{
			DodoWebhookSecret:         testSvixSecret,
			LemonSqueezyWebhookSecret: testLemonSecret,
			MonthlyProductIDs:         []string{"prod_monthly", "111"},
			YearlyProductIDs:          []string{"prod_yearly", "222"},
			PhonePe: config.PhonePeConfig{
				MerchantID:         "MERCHANT",
				SaltKey:            testPhonePeSalt,
				SaltIndex:          testPhonePeSaltIdx,
				MonthlyAmountPaise: 19900,
				YearlyAmountPaise:  199900,
			},
		},
	}
}

type testEnv struct {
	repo    *memoryRepository
	mirror  *memoryMirror
	service *billing.Service
	cfg     config.Config
}

func newTestEnv(directory billing.UserDirectory) *testEnv {
	repo := newMemoryRepository()
	mirror := newMemoryMirror()
	svc := billing.NewService(billing.ServiceConfig{
		Repository: repo,
		Directory:  directory,
		Mirror:     mirror,
	})
	return &testEnv{repo: repo, mirror: mirror, service: svc, cfg: testConfig()}
}

func (e *testEnv) normalizers() billing.Normalizers {
	resolve := e.cfg.Billing.PlanForProducts
	return billing.NewNormalizers(
		billing.DodoNormalizer{ResolvePlan: resolve},
		billing.LemonSqueezyNormalizer{ResolvePlan: resolve},
		billing.PhonePeNormalizer{},
	)
}

// withUser installs a signed-in user context in front of the handlers.
func withUser(app *fiber.App, userID, email string) {
	app.Use(func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{UserID: userID, Email: email, IsLoggedIn: true})
		return c.Next()
	})
}
