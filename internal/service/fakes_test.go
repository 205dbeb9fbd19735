package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"github.com/kursadbilgin/sendqueue/internal/events"
)

// memQueueTables keeps queue tables in memory. The *Fn hooks run before the
// default behavior and short-circuit it when they return an error.
type memQueueTables struct {
	mu     sync.Mutex
	tables map[string]*memQueueTable

	tableExistsCalls int
	createCalls      int

	createFn func(schema domain.QueueTableSchema) error
	insertFn func(schema domain.QueueTableSchema, entries []domain.QueueEntry) error
	deleteFn func(schema domain.QueueTableSchema, ids []int64) error
}

type memQueueTable struct {
	schema domain.QueueTableSchema
	rows   map[int64]domain.QueueEntry
	order  []int64
}

func newMemQueueTables() *memQueueTables {
	return &memQueueTables{tables: make(map[string]*memQueueTable)}
}

func (f *memQueueTables) TableExists(ctx context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableExistsCalls++
	_, ok := f.tables[table]
	return ok, nil
}

func (f *memQueueTables) CreateTable(ctx context.Context, schema domain.QueueTableSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createFn != nil {
		if err := f.createFn(schema); err != nil {
			return err
		}
	}
	if _, ok := f.tables[schema.Name]; ok {
		return fmt.Errorf("relation %q already exists", schema.Name)
	}
	f.tables[schema.Name] = &memQueueTable{schema: schema, rows: make(map[int64]domain.QueueEntry)}
	return nil
}

func (f *memQueueTables) DropTable(ctx context.Context, schema domain.QueueTableSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tables, schema.Name)
	return nil
}

func (f *memQueueTables) Insert(ctx context.Context, schema domain.QueueTableSchema, entries []domain.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertFn != nil {
		if err := f.insertFn(schema, entries); err != nil {
			return err
		}
	}
	table, ok := f.tables[schema.Name]
	if !ok {
		return fmt.Errorf("%w: relation %q", domain.ErrQueueTableMissing, schema.Name)
	}
	for _, e := range entries {
		if err := schema.Validate(e); err != nil {
			return err
		}
		if _, dup := table.rows[e.SubscriberID]; dup {
			continue
		}
		table.rows[e.SubscriberID] = e
		table.order = append(table.order, e.SubscriberID)
	}
	return nil
}

func (f *memQueueTables) Delete(ctx context.Context, schema domain.QueueTableSchema, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteFn != nil {
		if err := f.deleteFn(schema, ids); err != nil {
			return err
		}
	}
	table, ok := f.tables[schema.Name]
	if !ok {
		return fmt.Errorf("%w: relation %q", domain.ErrQueueTableMissing, schema.Name)
	}
	for _, id := range ids {
		delete(table.rows, id)
	}
	return nil
}

func (f *memQueueTables) Count(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time) (int64, error) {
	ids, err := f.FindSubscriberIDs(ctx, schema, dueAt, 0, -1)
	return int64(len(ids)), err
}

func (f *memQueueTables) FindSubscriberIDs(ctx context.Context, schema domain.QueueTableSchema, dueAt *time.Time, offset, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, ok := f.tables[schema.Name]
	if !ok {
		return nil, fmt.Errorf("%w: relation %q", domain.ErrQueueTableMissing, schema.Name)
	}

	matched := make([]int64, 0, len(table.rows))
	for _, id := range table.order {
		row, ok := table.rows[id]
		if !ok {
			continue
		}
		if dueAt != nil && row.SendAt != nil && row.SendAt.After(*dueAt) {
			continue
		}
		matched = append(matched, id)
	}
	return page(matched, offset, limit), nil
}

func (f *memQueueTables) exists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[name]
	return ok
}

func (f *memQueueTables) rowIDs(name string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, ok := f.tables[name]
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(table.rows))
	for id := range table.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *memQueueTables) row(name string, id int64) (domain.QueueEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table, ok := f.tables[name]
	if !ok {
		return domain.QueueEntry{}, false
	}
	row, ok := table.rows[id]
	return row, ok
}

// memSubscribers serves confirmed list members, segment membership and opens.
type memSubscribers struct {
	subscribers []domain.Subscriber
	segments    map[int64]map[int64]bool
	opens       map[int64]map[int64]bool

	findIDsCalls  int
	pages         [][]int64
	openedAnyArgs [][]int64
	findIDsFn     func(criteria domain.SubscriberCriteria, offset, limit int) error
}

func newMemSubscribers(listID int64, n int) *memSubscribers {
	subs := make([]domain.Subscriber, 0, n)
	for i := 1; i <= n; i++ {
		subs = append(subs, domain.Subscriber{
			ID:     int64(i),
			ListID: listID,
			Email:  "subscriber" + strconv.Itoa(i) + "@example.com",
			Status: domain.SubscriberStatusConfirmed,
		})
	}
	return &memSubscribers{
		subscribers: subs,
		segments:    make(map[int64]map[int64]bool),
		opens:       make(map[int64]map[int64]bool),
	}
}

func (f *memSubscribers) markOpened(subscriberID, campaignID int64) {
	if f.opens[subscriberID] == nil {
		f.opens[subscriberID] = make(map[int64]bool)
	}
	f.opens[subscriberID][campaignID] = true
}

func (f *memSubscribers) FindIDs(ctx context.Context, criteria domain.SubscriberCriteria, offset, limit int) ([]int64, error) {
	f.findIDsCalls++
	if f.findIDsFn != nil {
		if err := f.findIDsFn(criteria, offset, limit); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		if s.ListID != criteria.ListID || s.Status != domain.SubscriberStatusConfirmed {
			continue
		}
		if criteria.SegmentID != nil && !f.segments[*criteria.SegmentID][s.ID] {
			continue
		}
		ids = append(ids, s.ID)
	}

	if criteria.ShuffleSeed != "" {
		key := func(id int64) uint64 {
			h := fnv.New64a()
			_, _ = h.Write([]byte(strconv.FormatInt(id, 10) + criteria.ShuffleSeed))
			return h.Sum64()
		}
		sort.SliceStable(ids, func(i, j int) bool { return key(ids[i]) < key(ids[j]) })
	}
	out := page(ids, offset, limit)
	f.pages = append(f.pages, out)
	return out, nil
}

func (f *memSubscribers) FindByIDs(ctx context.Context, ids []int64) ([]domain.Subscriber, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	found := make([]domain.Subscriber, 0, len(ids))
	for _, s := range f.subscribers {
		if want[s.ID] {
			found = append(found, s)
		}
	}
	return found, nil
}

func (f *memSubscribers) OpenedAny(ctx context.Context, subscriberIDs []int64, campaignIDs []int64) (map[int64]bool, error) {
	f.openedAnyArgs = append(f.openedAnyArgs, subscriberIDs)
	opened := make(map[int64]bool)
	for _, id := range subscriberIDs {
		for _, campaignID := range campaignIDs {
			if f.opens[id][campaignID] {
				opened[id] = true
			}
		}
	}
	return opened, nil
}

// memDeliveryLogs keeps delivery logs in insertion order.
type memDeliveryLogs struct {
	mu   sync.Mutex
	logs []domain.DeliveryLog

	deleteFn func(campaignID int64, ids []int64) (int64, error)
}

func (f *memDeliveryLogs) add(campaignID int64, status domain.DeliveryLogStatus, subscriberIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range subscriberIDs {
		f.logs = append(f.logs, domain.DeliveryLog{
			ID:           int64(len(f.logs) + 1),
			CampaignID:   campaignID,
			SubscriberID: id,
			Status:       status,
		})
	}
}

func (f *memDeliveryLogs) FindByStatus(ctx context.Context, campaignID int64, status domain.DeliveryLogStatus, offset, limit int) ([]domain.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]domain.DeliveryLog, 0)
	for _, l := range f.logs {
		if l.CampaignID == campaignID && l.Status == status {
			matched = append(matched, l)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *memDeliveryLogs) DeleteByStatus(ctx context.Context, campaignID int64, status domain.DeliveryLogStatus, ids []int64) (int64, error) {
	if f.deleteFn != nil {
		return f.deleteFn(campaignID, ids)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.logs[:0]
	var deleted int64
	for _, l := range f.logs {
		if l.CampaignID == campaignID && l.Status == status && drop[l.SubscriberID] {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	f.logs = kept
	return deleted, nil
}

func (f *memDeliveryLogs) count(campaignID int64, status domain.DeliveryLogStatus) int {
	logs, _ := f.FindByStatus(context.Background(), campaignID, status, 0, -1)
	return len(logs)
}

// recordingSink captures emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Name())
	}
	return names
}

func (s *recordingSink) count(name string) int {
	n := 0
	for _, got := range s.names() {
		if got == name {
			n++
		}
	}
	return n
}

type fakeLocker struct {
	mu        sync.Mutex
	held      map[string]bool
	unlocked  []string
	tryLockFn func(key string) (bool, error)
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tryLockFn != nil {
		ok, err := f.tryLockFn(key)
		if err != nil || !ok {
			return "", ok, err
		}
	}
	if f.held[key] {
		return "", false, nil
	}
	f.held[key] = true
	return "token-" + key, true, nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key string, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "token-"+key {
		return errors.New("lock token mismatch")
	}
	delete(f.held, key)
	f.unlocked = append(f.unlocked, key)
	return nil
}

func page(ids []int64, offset, limit int) []int64 {
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit >= 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
