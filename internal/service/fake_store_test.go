package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// fakeMessageStore is an in-memory MessageRepository with the same FK and CHECK
// rules as the SQL schema, plus per-operation error injection and hooks.
// ---------------------------------------------------------------------------

type fakeMessageStore struct {
	mu    sync.Mutex
	rows  map[string]*model.Message
	order []string

	// failures pops one error per call of the named operation.
	failures map[string][]error
	calls    map[string]int

	// externalRefs simulates references the dependents query cannot see.
	externalRefs map[string]bool
	// reverseDependents returns dependents in reverse insertion order.
	reverseDependents bool

	beforeSetThreadID func(id string)
	afterDelete       func(id string)
	dependentsHook    func(id string, refs []model.MessageRef) []model.MessageRef
}

var _ repository.MessageRepository = (*fakeMessageStore)(nil)

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		rows:         make(map[string]*model.Message),
		failures:     make(map[string][]error),
		calls:        make(map[string]int),
		externalRefs: make(map[string]bool),
	}
}

func (f *fakeMessageStore) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeMessageStore) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records a call and returns an injected error, if any. Caller holds mu.
func (f *fakeMessageStore) enter(op string) error {
	f.calls[op]++
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func clone(m *model.Message) *model.Message {
	c := *m
	return &c
}

func checkBody(body string) error {
	if n := utf8.RuneCountInString(body); n < MinBodyLength || n > MaxBodyLength {
		return fmt.Errorf("%w: body length %d", repository.ErrCheckViolation, n)
	}
	return nil
}

// seed inserts m bypassing hooks and failure injection.
func (f *fakeMessageStore) seed(m *model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[m.ID] = clone(m)
	f.order = append(f.order, m.ID)
}

// get returns a copy of the stored row or nil.
func (f *fakeMessageStore) get(id string) *model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.rows[id]; ok {
		return clone(m)
	}
	return nil
}

func (f *fakeMessageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeMessageStore) filter(keep func(m *model.Message) bool) []*model.Message {
	var out []*model.Message
	for _, id := range f.order {
		m, ok := f.rows[id]
		if ok && keep(m) {
			out = append(out, clone(m))
		}
	}
	return out
}

func (f *fakeMessageStore) referenced(id string) bool {
	if f.externalRefs[id] {
		return true
	}
	for _, m := range f.rows {
		if m.ID == id {
			continue
		}
		if (m.ParentMessageID != nil && *m.ParentMessageID == id) || (m.ThreadID != nil && *m.ThreadID == id) {
			return true
		}
	}
	return false
}

func (f *fakeMessageStore) Create(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create"); err != nil {
		return err
	}
	if _, ok := f.rows[m.ID]; ok {
		return nil
	}
	if err := checkBody(m.Body); err != nil {
		return err
	}
	for _, ref := range []*string{m.ParentMessageID, m.ThreadID} {
		if ref == nil || *ref == m.ID {
			continue
		}
		if _, ok := f.rows[*ref]; !ok {
			return fmt.Errorf("%w: missing %s", repository.ErrForeignKeyViolation, *ref)
		}
	}
	f.rows[m.ID] = clone(m)
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeMessageStore) FindByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("find_by_id"); err != nil {
		return nil, err
	}
	m, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(m), nil
}

func (f *fakeMessageStore) ListByParticipant(_ context.Context, userID string) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_by_participant"); err != nil {
		return nil, err
	}
	return f.filter(func(m *model.Message) bool { return m.HasParticipant(userID) }), nil
}

func (f *fakeMessageStore) ListByThreadKeys(_ context.Context, keys []string) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_by_thread_keys"); err != nil {
		return nil, err
	}
	return f.filter(func(m *model.Message) bool {
		return slices.Contains(keys, m.ID) || (m.ThreadID != nil && slices.Contains(keys, *m.ThreadID))
	}), nil
}

func (f *fakeMessageStore) ListByParentIDs(_ context.Context, parentIDs []string) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_by_parent_ids"); err != nil {
		return nil, err
	}
	return f.filter(func(m *model.Message) bool {
		return m.ParentMessageID != nil && slices.Contains(parentIDs, *m.ParentMessageID)
	}), nil
}

func (f *fakeMessageStore) ListSent(_ context.Context, userID string) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_sent"); err != nil {
		return nil, err
	}
	return f.filter(func(m *model.Message) bool {
		if m.IsDeleted {
			return false
		}
		if m.SenderID == userID {
			return true
		}
		if m.RecipientID != userID || m.ParentMessageID == nil {
			return false
		}
		p, ok := f.rows[*m.ParentMessageID]
		return ok && p.SenderID == userID
	}), nil
}

func (f *fakeMessageStore) ListReceived(_ context.Context, userID string, archived bool) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_received"); err != nil {
		return nil, err
	}
	return f.filter(func(m *model.Message) bool {
		return m.RecipientID == userID && m.IsArchived == archived && !m.IsDeleted
	}), nil
}

func (f *fakeMessageStore) CountUnread(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("count_unread"); err != nil {
		return 0, err
	}
	return len(f.filter(func(m *model.Message) bool {
		return m.RecipientID == userID && m.ReadAt == nil && !m.IsArchived && !m.IsDeleted
	})), nil
}

func (f *fakeMessageStore) SetThreadIDIfNull(_ context.Context, id, threadID string) (bool, error) {
	if f.beforeSetThreadID != nil {
		f.beforeSetThreadID(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("set_thread_id"); err != nil {
		return false, err
	}
	m, ok := f.rows[id]
	if !ok || m.ThreadID != nil {
		return false, nil
	}
	key := threadID
	m.ThreadID = &key
	return true, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("mark_read"); err != nil {
		return err
	}
	m, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if m.ReadAt == nil {
		t := at
		m.ReadAt = &t
	}
	return nil
}

func (f *fakeMessageStore) MarkReadBulk(_ context.Context, ids []string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("mark_read_bulk"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if m, ok := f.rows[id]; ok && m.ReadAt == nil {
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) MarkUnread(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("mark_unread"); err != nil {
		return err
	}
	m, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.ReadAt = nil
	return nil
}

func (f *fakeMessageStore) SetArchived(_ context.Context, id string, archived bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("set_archived"); err != nil {
		return err
	}
	m, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsArchived = archived
	return nil
}

func (f *fakeMessageStore) ListDependents(_ context.Context, id string) ([]model.MessageRef, error) {
	f.mu.Lock()
	var refs []model.MessageRef
	err := f.enter("list_dependents")
	if err == nil {
		for _, m := range f.filter(func(m *model.Message) bool {
			if m.ID == id {
				return false
			}
			return (m.ParentMessageID != nil && *m.ParentMessageID == id) || (m.ThreadID != nil && *m.ThreadID == id)
		}) {
			refs = append(refs, model.MessageRef{ID: m.ID, IsDeleted: m.IsDeleted})
		}
		if f.reverseDependents {
			slices.Reverse(refs)
		}
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if f.dependentsHook != nil {
		refs = f.dependentsHook(id, refs)
	}
	return refs, nil
}

func (f *fakeMessageStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	if err := f.enter("delete"); err != nil {
		f.mu.Unlock()
		return false, err
	}
	if _, ok := f.rows[id]; !ok {
		f.mu.Unlock()
		return false, nil
	}
	if f.referenced(id) {
		f.mu.Unlock()
		return false, fmt.Errorf("%w: %s is still referenced", repository.ErrForeignKeyViolation, id)
	}
	delete(f.rows, id)
	f.order = slices.DeleteFunc(f.order, func(x string) bool { return x == id })
	f.mu.Unlock()

	if f.afterDelete != nil {
		f.afterDelete(id)
	}
	return true, nil
}

func (f *fakeMessageStore) Tombstone(_ context.Context, id, body string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("tombstone"); err != nil {
		return false, err
	}
	m, ok := f.rows[id]
	if !ok || m.IsDeleted {
		return false, nil
	}
	if err := checkBody(body); err != nil {
		return false, err
	}
	m.IsDeleted = true
	m.Body = body
	return true, nil
}

// ---------------------------------------------------------------------------
// mockProfileRepository / mockListingRepository / mockNotifier
// ---------------------------------------------------------------------------

type mockProfileRepository struct {
	mu           sync.Mutex
	batches      [][]string
	profiles     map[string]*model.Profile
	findByIDsErr func(ids []string) error
}

func (m *mockProfileRepository) FindByIDs(_ context.Context, ids []string) ([]*model.Profile, error) {
	m.mu.Lock()
	m.batches = append(m.batches, slices.Clone(ids))
	m.mu.Unlock()
	if m.findByIDsErr != nil {
		if err := m.findByIDsErr(ids); err != nil {
			return nil, err
		}
	}
	var out []*model.Profile
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockListingRepository struct {
	mu                sync.Mutex
	summaries         map[string]*model.ListingSummary
	contactCounts     map[string]int
	findSummariesFunc func(ids []string) ([]*model.ListingSummary, error)
	incrementErr      error
}

func (m *mockListingRepository) FindSummaries(_ context.Context, ids []string) ([]*model.ListingSummary, error) {
	if m.findSummariesFunc != nil {
		return m.findSummariesFunc(ids)
	}
	var out []*model.ListingSummary
	for _, id := range ids {
		if s, ok := m.summaries[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockListingRepository) IncrementContactCount(_ context.Context, listingID string) error {
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contactCounts == nil {
		m.contactCounts = make(map[string]int)
	}
	m.contactCounts[listingID]++
	return nil
}

type mockNotifier struct {
	mu         sync.Mutex
	sent       []model.Notification
	notifyFunc func(n model.Notification) error
}

func (m *mockNotifier) Notify(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	if m.notifyFunc != nil {
		return m.notifyFunc(n)
	}
	return nil
}
