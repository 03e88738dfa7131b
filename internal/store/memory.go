package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/util"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

type cartKey struct {
	storeID    int64
	checkoutID string
}

type profileKey struct {
	storeID    int64
	identifier string
}

// InMemoryStore is an arena store: one map per entity keyed by id plus a
// monotonic id counter. Unique keys are enforced with secondary indexes.
// It is safe for concurrent use.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64

	stores       map[int64]models.Store
	chatSettings map[int64]models.ChatSettings
	automation   map[int64]models.AutomationSettings
	automationBy map[int64]int64 // store id -> settings id
	carts        map[int64]models.AbandonedCart
	cartIndex    map[cartKey]int64
	attempts     map[int64]models.RecoveryAttempt
	profiles     map[int64]models.CustomerProfile
	profileIndex map[profileKey]int64
	convs        map[int64]models.Conversation
	messages     map[int64]models.Message
	faqs         map[int64]models.FAQ
	outbox       map[string]OutboxMessage
	dedup        map[string]DedupRecord

	clock func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		stores:       make(map[int64]models.Store),
		chatSettings: make(map[int64]models.ChatSettings),
		automation:   make(map[int64]models.AutomationSettings),
		automationBy: make(map[int64]int64),
		carts:        make(map[int64]models.AbandonedCart),
		cartIndex:    make(map[cartKey]int64),
		attempts:     make(map[int64]models.RecoveryAttempt),
		profiles:     make(map[int64]models.CustomerProfile),
		profileIndex: make(map[profileKey]int64),
		convs:        make(map[int64]models.Conversation),
		messages:     make(map[int64]models.Message),
		faqs:         make(map[int64]models.FAQ),
		outbox:       make(map[string]OutboxMessage),
		dedup:        make(map[string]DedupRecord),
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// ---- Stores ----

func (s *InMemoryStore) CreateStore(st models.Store) (models.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	st.ID, st.CreatedAt, st.UpdatedAt = s.id(), now, now
	s.stores[st.ID] = st
	return st, nil
}

func (s *InMemoryStore) GetStore(id int64) (*models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *InMemoryStore) ListStores() ([]models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Chat settings ----

func (s *InMemoryStore) GetChatSettings(storeID int64) (*models.ChatSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chatSettings[storeID]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s *InMemoryStore) SaveChatSettings(cs models.ChatSettings) (models.ChatSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[cs.StoreID]; !ok {
		return cs, ErrStoreNotFound
	}
	cs.UpdatedAt = s.clock()
	s.chatSettings[cs.StoreID] = cs
	return cs, nil
}

// ---- Automation settings ----

func (s *InMemoryStore) CreateAutomationSettings(as models.AutomationSettings) (models.AutomationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[as.StoreID]; !ok {
		return as, ErrStoreNotFound
	}
	if _, ok := s.automationBy[as.StoreID]; ok {
		return as, ErrSettingsExist
	}
	now := s.clock()
	as.ID, as.CreatedAt, as.UpdatedAt = s.id(), now, now
	s.automation[as.ID] = as
	s.automationBy[as.StoreID] = as.ID
	return as, nil
}

func (s *InMemoryStore) GetAutomationSettings(storeID int64) (*models.AutomationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.automationBy[storeID]
	if !ok {
		return nil, nil
	}
	as := s.automation[id]
	return &as, nil
}

func (s *InMemoryStore) GetAutomationSettingsByID(id int64) (*models.AutomationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	as, ok := s.automation[id]
	if !ok {
		return nil, nil
	}
	return &as, nil
}

func (s *InMemoryStore) UpdateAutomationSettings(as models.AutomationSettings) (*models.AutomationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.automation[as.ID]
	if !ok {
		return nil, nil
	}
	// The owning store and creation time are immutable.
	as.StoreID = existing.StoreID
	as.CreatedAt = existing.CreatedAt
	as.UpdatedAt = s.clock()
	s.automation[as.ID] = as
	return &as, nil
}

func (s *InMemoryStore) ListEnabledAutomationSettings() ([]models.AutomationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AutomationSettings
	for _, as := range s.automation {
		if as.IsEnabled {
			out = append(out, as)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out, nil
}

// ---- Abandoned carts ----

func (s *InMemoryStore) UpsertCart(c models.AbandonedCart) (models.AbandonedCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[c.StoreID]; !ok {
		return c, ErrStoreNotFound
	}
	if c.CartItems == nil {
		c.CartItems = models.CartItems{}
	}
	c.CustomerEmail = normalizeEmail(c.CustomerEmail)
	now := s.clock()
	c.UpdatedAt = now

	key := cartKey{c.StoreID, c.ExternalCheckoutID}
	if id, ok := s.cartIndex[key]; ok {
		c.ID = id
		c.CreatedAt = s.carts[id].CreatedAt
		if c.AbandonedAt.IsZero() {
			c.AbandonedAt = s.carts[id].AbandonedAt
		}
	} else {
		if c.AbandonedAt.IsZero() {
			c.AbandonedAt = now
		}
		c.ID = s.id()
		c.CreatedAt = now
		s.cartIndex[key] = c.ID
	}
	s.carts[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) GetCart(id int64) (*models.AbandonedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) filterCarts(keep func(models.AbandonedCart) bool) []models.AbandonedCart {
	var out []models.AbandonedCart
	for _, c := range s.carts {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// newestFirst orders carts by abandoned_at descending, ties by id.
func newestFirst(carts []models.AbandonedCart) {
	sort.Slice(carts, func(i, j int) bool {
		if !carts[i].AbandonedAt.Equal(carts[j].AbandonedAt) {
			return carts[i].AbandonedAt.After(carts[j].AbandonedAt)
		}
		return carts[i].ID > carts[j].ID
	})
}

func (s *InMemoryStore) ListCarts(storeID int64) ([]models.AbandonedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterCarts(func(c models.AbandonedCart) bool { return c.StoreID == storeID })
	newestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListRecoverableCarts(storeID int64, since time.Time) ([]models.AbandonedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterCarts(func(c models.AbandonedCart) bool {
		return c.StoreID == storeID && c.CustomerEmail != "" &&
			(!c.AbandonedAt.Before(since) || !c.UpdatedAt.Before(since))
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AbandonedAt.Equal(out[j].AbandonedAt) {
			return out[i].AbandonedAt.Before(out[j].AbandonedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) ListCartsByEmail(storeID int64, email string) ([]models.AbandonedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = normalizeEmail(email)
	out := s.filterCarts(func(c models.AbandonedCart) bool {
		return c.StoreID == storeID && email != "" && c.CustomerEmail == email
	})
	newestFirst(out)
	return out, nil
}

// SetClock overrides the store's clock. Intended for tests.
func (s *InMemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// ---- Recovery attempts ----

func (s *InMemoryStore) CreateRecoveryAttempt(a models.RecoveryAttempt) (models.RecoveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[a.CartID]; !ok {
		return a, ErrCartNotFound
	}
	now := s.clock()
	a.ID, a.CreatedAt = s.id(), now
	if a.SentAt.IsZero() {
		a.SentAt = now
	}
	s.attempts[a.ID] = a
	return a, nil
}

func (s *InMemoryStore) GetRecoveryAttempt(id int64) (*models.RecoveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryStore) UpdateRecoveryAttempt(a models.RecoveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.attempts[a.ID]
	if !ok {
		return nil
	}
	existing.Status = a.Status
	existing.ConvertedAt = a.ConvertedAt
	s.attempts[a.ID] = existing
	return nil
}

func (s *InMemoryStore) ListRecoveryAttemptsByCart(cartID int64) ([]models.RecoveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RecoveryAttempt
	for _, a := range s.attempts {
		if a.CartID == cartID {
			out = append(out, a)
		}
	}
	// Ids are monotonic, so id order is creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListRecoveryAttemptsByStore(storeID int64, filter models.AttemptFilter) ([]models.RecoveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RecoveryAttempt
	for _, a := range s.attempts {
		c, ok := s.carts[a.CartID]
		if !ok || c.StoreID != storeID || !filter.Matches(a) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ---- Customer profiles ----

func (s *InMemoryStore) UpsertCustomerProfile(p models.CustomerProfile) (models.CustomerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[p.StoreID]; !ok {
		return p, ErrStoreNotFound
	}
	p.Email = normalizeEmail(p.Email)
	now := s.clock()
	key := profileKey{p.StoreID, p.Identifier}
	if id, ok := s.profileIndex[key]; ok {
		existing := s.profiles[id]
		if p.Email != "" {
			existing.Email = p.Email
		}
		if p.Name != "" {
			existing.Name = p.Name
		}
		existing.UpdatedAt = now
		s.profiles[id] = existing
		return existing, nil
	}
	p.ID, p.CreatedAt, p.UpdatedAt = s.id(), now, now
	s.profiles[p.ID] = p
	s.profileIndex[key] = p.ID
	return p, nil
}

func (s *InMemoryStore) GetCustomerProfile(id int64) (*models.CustomerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ---- Conversations & messages ----

func (s *InMemoryStore) CreateConversation(c models.Conversation) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[c.StoreID]; !ok {
		return c, ErrStoreNotFound
	}
	now := s.clock()
	c.ID, c.CreatedAt, c.UpdatedAt = s.id(), now, now
	c.CustomerEmail = normalizeEmail(c.CustomerEmail)
	s.convs[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) GetConversation(id int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) SetConversationEmail(id int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.CustomerEmail = normalizeEmail(email)
	c.UpdatedAt = s.clock()
	s.convs[id] = c
	return nil
}

func (s *InMemoryStore) AddMessage(m models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[m.ConversationID]; !ok {
		return m, ErrConversationNotFound
	}
	m.ID, m.CreatedAt = s.id(), s.clock()
	s.messages[m.ID] = m
	return m, nil
}

func (s *InMemoryStore) ListMessages(conversationID int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- FAQs ----

func (s *InMemoryStore) CreateFAQ(f models.FAQ) (models.FAQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[f.StoreID]; !ok {
		return f, ErrStoreNotFound
	}
	f.ID, f.CreatedAt = s.id(), s.clock()
	s.faqs[f.ID] = f
	return f, nil
}

func (s *InMemoryStore) ListFAQs(storeID int64) ([]models.FAQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FAQ
	for _, f := range s.faqs {
		if f.StoreID == storeID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteFAQ(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.faqs[id]; !ok {
		return false, nil
	}
	delete(s.faqs, id)
	return true, nil
}

// ---- Outbox ----

func (s *InMemoryStore) EnqueueOutboxMessage(recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusSent && m.Status != OutboxStatusCanceled {
				return m.ID, nil
			}
		}
	}
	now := s.clock()
	m := OutboxMessage{
		ID:          util.GenerateRandomID("outbox_", 32),
		Recipient:   recipient,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox[m.ID] = m
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []OutboxMessage
	for _, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		lockedAt := now
		due[i].Status = OutboxStatusSending
		due[i].LockedAt = &lockedAt
		due[i].UpdatedAt = now
		s.outbox[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *InMemoryStore) updateOutbox(id string, fn func(*OutboxMessage)) {
	m, ok := s.outbox[id]
	if !ok {
		return
	}
	fn(&m)
	m.UpdatedAt = s.clock()
	s.outbox[id] = m
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateOutbox(id, func(m *OutboxMessage) { m.Status = OutboxStatusSent })
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusQueued
		m.Attempts++
		m.LastError = errMsg
		m.NextAttemptAt = &nextAttemptAt
		m.LockedAt = nil
	})
	return nil
}

func (s *InMemoryStore) GiveUpOutboxMessage(id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusFailed
		m.Attempts++
		m.LastError = errMsg
		m.LockedAt = nil
	})
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			s.outbox[id] = m
			n++
		}
	}
	return n, nil
}

// OutboxMessages returns a snapshot of every outbox message. Intended for tests.
func (s *InMemoryStore) OutboxMessages() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ---- Dedup ----

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, scope string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, Scope: scope, ReceivedAt: s.clock()}
	return true, nil
}

func (s *InMemoryStore) ReleaseInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok && rec.ProcessedAt == nil {
		delete(s.dedup, messageID)
	}
	return nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := s.clock()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}
