package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/sendqueue/internal/domain"
	"github.com/kursadbilgin/sendqueue/internal/events"
	"github.com/kursadbilgin/sendqueue/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPopulateBatchSize = 500
	defaultGiveupBatchSize   = 500
	defaultResolveChunkSize  = 300
)

type QueueConfig struct {
	PopulateBatchSize int
	GiveupBatchSize   int
	ResolveChunkSize  int
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.PopulateBatchSize <= 0 {
		c.PopulateBatchSize = defaultPopulateBatchSize
	}
	if c.GiveupBatchSize <= 0 {
		c.GiveupBatchSize = defaultGiveupBatchSize
	}
	if c.ResolveChunkSize <= 0 {
		c.ResolveChunkSize = defaultResolveChunkSize
	}
	return c
}

// QueueMaterializer owns the per-campaign queue tables. Use For to operate on
// a single campaign.
type QueueMaterializer struct {
	tables       repository.QueueTableRepository
	subscribers  repository.SubscriberRepository
	deliveryLogs repository.DeliveryLogRepository
	index        *TableIndex
	cfg          QueueConfig
	events       events.Sink
	logger       *zap.Logger
	now          func() time.Time
	newSeed      func() string
}

func NewQueueMaterializer(
	tables repository.QueueTableRepository,
	subscribers repository.SubscriberRepository,
	deliveryLogs repository.DeliveryLogRepository,
	cfg QueueConfig,
	sink events.Sink,
	logger *zap.Logger,
) (*QueueMaterializer, error) {
	if tables == nil {
		return nil, fmt.Errorf("queue table repository is required")
	}
	if subscribers == nil {
		return nil, fmt.Errorf("subscriber repository is required")
	}
	if deliveryLogs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueMaterializer{
		tables:       tables,
		subscribers:  subscribers,
		deliveryLogs: deliveryLogs,
		index:        NewTableIndex(),
		cfg:          cfg.withDefaults(),
		events:       sink,
		logger:       logger,
		now:          time.Now,
		newSeed:      uuid.NewString,
	}, nil
}

// For binds the materializer to one campaign.
func (m *QueueMaterializer) For(campaign domain.Campaign) *CampaignQueue {
	return &CampaignQueue{
		m:        m,
		campaign: campaign,
		schema:   domain.NewQueueTableSchema(campaign.ID, campaign.QueueKind()),
	}
}

// CampaignQueue is the queue table of a single campaign. It is not safe for
// concurrent use on the same campaign; callers serialize with a lock.
type CampaignQueue struct {
	m        *QueueMaterializer
	campaign domain.Campaign
	schema   domain.QueueTableSchema
}

func (q *CampaignQueue) TableName() string {
	return q.schema.Name
}

func (q *CampaignQueue) TableExists(ctx context.Context) (bool, error) {
	if q.m.index.Known(q.schema.Name) {
		return true, nil
	}

	exists, err := q.m.tables.TableExists(ctx, q.schema.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check queue table %q: %w", q.schema.Name, err)
	}
	if exists {
		q.m.index.Remember(q.schema.Name)
	}
	return exists, nil
}

// CreateTable creates the queue table. It returns false when it already exists.
func (q *CampaignQueue) CreateTable(ctx context.Context) (bool, error) {
	exists, err := q.TableExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := q.m.tables.CreateTable(ctx, q.schema); err != nil {
		return false, fmt.Errorf("failed to create queue table %q: %w", q.schema.Name, err)
	}
	q.m.index.Remember(q.schema.Name)

	q.m.logger.Info("queue table created",
		zap.Int64("campaignId", q.campaign.ID),
		zap.String("table", q.schema.Name),
	)
	return true, nil
}

// DropTable removes the queue table. It returns false when there was none.
func (q *CampaignQueue) DropTable(ctx context.Context) (bool, error) {
	exists, err := q.TableExists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	defer q.m.index.Forget(q.schema.Name)

	if err := q.m.tables.DropTable(ctx, q.schema); err != nil {
		return false, fmt.Errorf("failed to drop queue table %q: %w", q.schema.Name, err)
	}

	q.m.events.Emit(ctx, events.QueueDropped{CampaignID: q.campaign.ID})
	return true, nil
}

// PopulateTable materializes the recipient set. It returns false when the
// table already exists. On failure the partial table is dropped.
func (q *CampaignQueue) PopulateTable(ctx context.Context) (bool, error) {
	created, err := q.CreateTable(ctx)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	queued, filtered, err := q.populate(ctx)
	if err != nil {
		if _, dropErr := q.DropTable(context.WithoutCancel(ctx)); dropErr != nil {
			q.m.logger.Error("failed to drop partially populated queue table",
				zap.Int64("campaignId", q.campaign.ID),
				zap.String("table", q.schema.Name),
				zap.Error(dropErr),
			)
		}
		return false, fmt.Errorf("failed to populate queue table %q: %w", q.schema.Name, err)
	}

	q.m.events.Emit(ctx, events.QueuePopulated{
		CampaignID: q.campaign.ID,
		Queued:     queued,
		Filtered:   filtered,
	})
	return true, nil
}

func (q *CampaignQueue) populate(ctx context.Context) (int, int, error) {
	criteria := domain.CriteriaForCampaign(q.campaign)
	limit := q.campaign.Option.MaxSendCount
	if q.campaign.HasSendCap() && q.campaign.Option.MaxSendCountRandom {
		criteria.ShuffleSeed = q.m.newSeed()
	}

	sendAt := q.campaign.AutoresponderSendAt(q.m.now())
	batchSize := q.m.cfg.PopulateBatchSize

	seen := make(map[int64]struct{})
	queued := make([]int64, 0, batchSize)

	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		ids, err := q.m.subscribers.FindIDs(ctx, criteria, offset, batchSize)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to find subscribers at offset %d: %w", offset, err)
		}

		entries := make([]domain.QueueEntry, 0, len(ids))
		for _, id := range ids {
			if limit > 0 && len(queued) >= limit {
				break
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			entries = append(entries, q.schema.NewEntry(id, sendAt))
			queued = append(queued, id)
		}

		if err := q.m.tables.Insert(ctx, q.schema, entries); err != nil {
			return 0, 0, fmt.Errorf("failed to insert queue rows: %w", err)
		}

		if len(ids) < batchSize || (limit > 0 && len(queued) >= limit) {
			break
		}
	}

	rejected, err := q.filterOpenUnopen(ctx, queued)
	if err != nil {
		return 0, 0, err
	}
	return len(queued) - len(rejected), len(rejected), nil
}

// filterOpenUnopen deletes the queue rows of ids failing the campaign's
// open/unopen filter and returns the ids it removed.
func (q *CampaignQueue) filterOpenUnopen(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	filter := q.campaign.Option.OpenUnopen
	if !filter.Active() || len(ids) == 0 {
		return nil, nil
	}

	rejected := make(map[int64]struct{})
	for _, chunk := range chunkIDs(ids, q.m.cfg.ResolveChunkSize) {
		opened, err := q.m.subscribers.OpenedAny(ctx, chunk, filter.CampaignIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve open history: %w", err)
		}

		drop := make([]int64, 0)
		for _, id := range chunk {
			if !filter.Allows(opened[id]) {
				drop = append(drop, id)
			}
		}
		if len(drop) == 0 {
			continue
		}

		if err := q.m.tables.Delete(ctx, q.schema, drop); err != nil {
			return nil, fmt.Errorf("failed to delete filtered queue rows: %w", err)
		}
		for _, id := range drop {
			rejected[id] = struct{}{}
		}
	}

	if len(rejected) > 0 {
		q.m.events.Emit(ctx, events.SubscribersFiltered{
			CampaignID: q.campaign.ID,
			Count:      len(rejected),
		})
	}
	return rejected, nil
}

// HandleSendingGiveups moves subscribers whose delivery was given up back
// into the queue and deletes their giveup logs. Rows are inserted before
// their logs are removed so an interruption never loses a subscriber.
func (q *CampaignQueue) HandleSendingGiveups(ctx context.Context) (int, error) {
	batchSize := q.m.cfg.GiveupBatchSize
	total := 0

	for {
		logs, err := q.m.deliveryLogs.FindByStatus(ctx, q.campaign.ID, domain.DeliveryLogStatusGiveup, 0, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to find giveup delivery logs: %w", err)
		}
		if len(logs) == 0 {
			break
		}

		if _, err := q.CreateTable(ctx); err != nil {
			return total, err
		}

		now := q.m.now()
		ids := make([]int64, 0, len(logs))
		entries := make([]domain.QueueEntry, 0, len(logs))
		seen := make(map[int64]struct{}, len(logs))
		for _, l := range logs {
			if _, ok := seen[l.SubscriberID]; ok {
				continue
			}
			seen[l.SubscriberID] = struct{}{}
			ids = append(ids, l.SubscriberID)
			entries = append(entries, q.schema.NewEntry(l.SubscriberID, now))
		}

		err = q.writeTable(ctx, func() error {
			return q.m.tables.Insert(ctx, q.schema, entries)
		})
		if err != nil {
			return total, fmt.Errorf("failed to requeue giveup subscribers: %w", err)
		}

		deleted, err := q.m.deliveryLogs.DeleteByStatus(ctx, q.campaign.ID, domain.DeliveryLogStatusGiveup, ids)
		if err != nil {
			return total, fmt.Errorf("failed to delete giveup delivery logs: %w", err)
		}
		if deleted == 0 {
			return total, fmt.Errorf("giveup delivery logs of campaign %d were not removed", q.campaign.ID)
		}

		total += len(ids)
		if len(logs) < batchSize {
			break
		}
	}

	if total > 0 {
		q.m.events.Emit(ctx, events.GiveupsRequeued{CampaignID: q.campaign.ID, Count: total})
	}
	return total, nil
}

// AddSubscriber queues one row, creating the table if needed. A subscriber
// already queued is left unchanged.
func (q *CampaignQueue) AddSubscriber(ctx context.Context, entry domain.QueueEntry) error {
	if err := q.schema.Validate(entry); err != nil {
		return err
	}
	if _, err := q.CreateTable(ctx); err != nil {
		return err
	}

	err := q.writeTable(ctx, func() error {
		return q.m.tables.Insert(ctx, q.schema, []domain.QueueEntry{entry})
	})
	if err != nil {
		return fmt.Errorf("failed to add subscriber %d to queue: %w", entry.SubscriberID, err)
	}
	return nil
}

func (q *CampaignQueue) DeleteSubscriber(ctx context.Context, subscriberID int64) error {
	if _, err := q.CreateTable(ctx); err != nil {
		return err
	}

	err := q.writeTable(ctx, func() error {
		return q.m.tables.Delete(ctx, q.schema, []int64{subscriberID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %d from queue: %w", subscriberID, err)
	}
	return nil
}

// writeTable runs write against the queue table. When another worker dropped
// the table behind the index, the entry is forgotten and the table recreated
// before write is retried once.
func (q *CampaignQueue) writeTable(ctx context.Context, write func() error) error {
	err := write()
	if !errors.Is(err, domain.ErrQueueTableMissing) {
		return err
	}

	q.m.index.Forget(q.schema.Name)
	q.m.logger.Warn("queue table vanished, recreating",
		zap.Int64("campaignId", q.campaign.ID),
		zap.String("table", q.schema.Name),
	)
	if _, err := q.CreateTable(ctx); err != nil {
		return err
	}
	return write()
}

// CountSubscribers counts queued rows that are due. A missing table counts 0.
func (q *CampaignQueue) CountSubscribers(ctx context.Context) (int64, error) {
	exists, err := q.TableExists(ctx)
	if err != nil || !exists {
		return 0, err
	}

	count, err := q.m.tables.Count(ctx, q.schema, q.dueAt())
	if errors.Is(err, domain.ErrQueueTableMissing) {
		q.m.index.Forget(q.schema.Name)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count queue table %q: %w", q.schema.Name, err)
	}
	return count, nil
}

// FindSubscribers returns up to limit due subscribers starting at offset.
// Subscribers failing the open/unopen filter are removed from the queue and
// those whose local time has not reached the timewarp are skipped.
func (q *CampaignQueue) FindSubscribers(ctx context.Context, offset, limit int) ([]domain.Subscriber, error) {
	exists, err := q.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	ids, err := q.m.tables.FindSubscriberIDs(ctx, q.schema, q.dueAt(), offset, limit)
	if errors.Is(err, domain.ErrQueueTableMissing) {
		q.m.index.Forget(q.schema.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue table %q: %w", q.schema.Name, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := q.m.now()
	timewarp := q.campaign.Option.Timewarp

	byID := make(map[int64]domain.Subscriber, len(ids))
	for _, chunk := range chunkIDs(ids, q.m.cfg.ResolveChunkSize) {
		resolved, err := q.m.subscribers.FindByIDs(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve queued subscribers: %w", err)
		}
		for _, s := range resolved {
			byID[s.ID] = s
		}
	}

	// Keep queue order.
	subscribers := make([]domain.Subscriber, 0, len(byID))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			continue
		}
		if timewarp != nil && !timewarp.Due(now, s.Timezone) {
			continue
		}
		subscribers = append(subscribers, s)
	}

	resolvedIDs := make([]int64, 0, len(subscribers))
	for _, s := range subscribers {
		resolvedIDs = append(resolvedIDs, s.ID)
	}

	rejected, err := q.filterOpenUnopen(ctx, resolvedIDs)
	if err != nil {
		return nil, err
	}
	if len(rejected) == 0 {
		return subscribers, nil
	}

	kept := subscribers[:0]
	for _, s := range subscribers {
		if _, drop := rejected[s.ID]; !drop {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

func (q *CampaignQueue) dueAt() *time.Time {
	if q.schema.Kind != domain.QueueKindAutoresponder {
		return nil
	}
	now := q.m.now()
	return &now
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(ids)
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
