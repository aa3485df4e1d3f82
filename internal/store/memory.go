package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"YONASettlement/internal/models"
)

// Memory is an in-process IntentStore and Directory for single-node sandboxes and tests.
type Memory struct {
	mu        sync.RWMutex
	intents   map[string]models.PaymentIntent
	templates map[string]models.PaymentTemplate
	users     map[string]models.User
	members   map[string]models.Member
	assets    []models.SupportedAsset
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		intents:   make(map[string]models.PaymentIntent),
		templates: make(map[string]models.PaymentTemplate),
		users:     make(map[string]models.User),
		members:   make(map[string]models.Member),
		now:       time.Now,
	}
}

func (m *Memory) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
}

func (m *Memory) AddMember(mem models.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.MemberID] = mem
}

func (m *Memory) AddSupportedAsset(a models.SupportedAsset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, a)
}

func (m *Memory) CreateIntent(_ context.Context, intent *models.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[intent.IntentID]; ok {
		return fmt.Errorf("intent %s already exists", intent.IntentID)
	}
	now := m.now().UTC()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	m.intents[intent.IntentID] = cloneIntent(*intent)
	return nil
}

func (m *Memory) GetIntent(_ context.Context, intentID string) (*models.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("intent %s: %w", intentID, ErrNotFound)
	}
	out := cloneIntent(intent)
	return &out, nil
}

func (m *Memory) UpdateIntent(_ context.Context, intentID string, expected models.IntentStatus, u IntentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, err := m.expect(intentID, expected)
	if err != nil {
		return err
	}
	u.Apply(&intent)
	intent.UpdatedAt = m.now().UTC()
	m.intents[intentID] = cloneIntent(intent)
	return nil
}

func (m *Memory) DeleteIntent(_ context.Context, intentID string, expected models.IntentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.expect(intentID, expected); err != nil {
		return err
	}
	delete(m.intents, intentID)
	return nil
}

func (m *Memory) SaveTemplate(_ context.Context, tmpl models.PaymentTemplate, expected models.IntentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, err := m.expect(tmpl.IntentID, expected)
	if err != nil {
		return err
	}
	if intent.TemplateID != nil {
		return fmt.Errorf("intent %s: %w", tmpl.IntentID, ErrConflict)
	}
	if _, ok := m.templates[tmpl.TemplateID]; ok {
		return fmt.Errorf("template %s already exists", tmpl.TemplateID)
	}
	tmpl.CreatedAt = m.now().UTC()
	m.templates[tmpl.TemplateID] = tmpl
	id := tmpl.TemplateID
	intent.TemplateID = &id
	intent.UpdatedAt = tmpl.CreatedAt
	m.intents[tmpl.IntentID] = intent
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, templateID string) (*models.PaymentTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) ListIntentsByStatus(_ context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error) {
	out := m.filter(func(i models.PaymentIntent) bool { return i.Status == status })
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListUserIntents(_ context.Context, yonaID string) ([]models.PaymentIntent, error) {
	out := m.filter(func(i models.PaymentIntent) bool {
		return i.OriginatorYonaID == yonaID || i.BeneficiaryYonaID == yonaID
	})
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return &u, nil
}

func (m *Memory) Member(_ context.Context, memberID string) (*models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
	}
	return &mem, nil
}

func (m *Memory) SupportsCurrency(_ context.Context, memberID, currency string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assets {
		if a.MemberID == memberID && strings.EqualFold(a.Currency, currency) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) IssuerForCurrency(_ context.Context, code, memberID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assets {
		if a.AssetCode == code && (memberID == "" || a.MemberID == memberID) {
			return a.Issuer, nil
		}
	}
	return "", fmt.Errorf("issuer for %s: %w", code, ErrNotFound)
}

// expect returns a copy of the intent if it is at status. Callers hold mu.
func (m *Memory) expect(intentID string, status models.IntentStatus) (models.PaymentIntent, error) {
	intent, ok := m.intents[intentID]
	if !ok {
		return models.PaymentIntent{}, fmt.Errorf("intent %s: %w", intentID, ErrNotFound)
	}
	if intent.Status != status {
		return models.PaymentIntent{}, fmt.Errorf("intent %s is %s, want %s: %w", intentID, intent.Status, status, ErrConflict)
	}
	return cloneIntent(intent), nil
}

func (m *Memory) filter(keep func(models.PaymentIntent) bool) []models.PaymentIntent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PaymentIntent
	for _, i := range m.intents {
		if keep(i) {
			out = append(out, cloneIntent(i))
		}
	}
	return out
}

func cloneIntent(i models.PaymentIntent) models.PaymentIntent {
	if i.MismatchReasons != nil {
		i.MismatchReasons = append([]string(nil), i.MismatchReasons...)
	}
	return i
}
