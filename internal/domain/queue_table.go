package domain

import (
	"fmt"
	"strconv"
	"time"
)

const (
	queueTablePrefix = "campaign_queue_table_c"

	// SubscribersTable is the table campaign queue rows reference.
	SubscribersTable = "list_subscribers"
)

// QueueKind is the shape of a campaign queue table.
type QueueKind int

const (
	// QueueKindRegular rows carry a failures counter.
	QueueKindRegular QueueKind = iota
	// QueueKindAutoresponder rows carry the time they become due.
	QueueKindAutoresponder
)

func (k QueueKind) String() string {
	switch k {
	case QueueKindRegular:
		return "regular"
	case QueueKindAutoresponder:
		return "autoresponder"
	}
	return "unknown"
}

// QueueTableName returns the deterministic queue table name of a campaign.
func QueueTableName(campaignID int64) string {
	return queueTablePrefix + strconv.FormatInt(campaignID, 10)
}

// QueueTableSchema describes one campaign queue table and produces its DDL.
type QueueTableSchema struct {
	Name string
	Kind QueueKind
}

func NewQueueTableSchema(campaignID int64, kind QueueKind) QueueTableSchema {
	return QueueTableSchema{
		Name: QueueTableName(campaignID),
		Kind: kind,
	}
}

func (s QueueTableSchema) UniqueKeyName() string { return s.Name + "_subscriber_id_key" }

func (s QueueTableSchema) ForeignKeyName() string { return s.Name + "_subscriber_id_fk" }

func (s QueueTableSchema) SendAtIndexName() string { return s.Name + "_subscriber_id_send_at_idx" }

// Columns lists the insertable columns in row order.
func (s QueueTableSchema) Columns() []string {
	if s.Kind == QueueKindAutoresponder {
		return []string{"subscriber_id", "send_at"}
	}
	return []string{"subscriber_id", "failures"}
}

// CreateStatements returns the DDL that creates the table, its indexes and the
// cascading foreign key to the subscribers table.
func (s QueueTableSchema) CreateStatements() []string {
	var columns string
	switch s.Kind {
	case QueueKindAutoresponder:
		columns = `subscriber_id BIGINT NOT NULL, send_at TIMESTAMPTZ NOT NULL`
	default:
		columns = `subscriber_id BIGINT NOT NULL, failures INT NOT NULL DEFAULT 0`
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE %q (%s, CONSTRAINT %q UNIQUE (subscriber_id))`,
			s.Name, columns, s.UniqueKeyName()),
	}
	if s.Kind == QueueKindAutoresponder {
		statements = append(statements, fmt.Sprintf(`CREATE INDEX %q ON %q (subscriber_id, send_at)`,
			s.SendAtIndexName(), s.Name))
	}
	statements = append(statements, fmt.Sprintf(
		`ALTER TABLE %q ADD CONSTRAINT %q FOREIGN KEY (subscriber_id) REFERENCES %q (id) ON DELETE CASCADE ON UPDATE NO ACTION`,
		s.Name, s.ForeignKeyName(), SubscribersTable))

	return statements
}

// DropStatements empties the table, removes the kind specific index and the
// foreign key, then drops the table.
func (s QueueTableSchema) DropStatements() []string {
	statements := []string{
		fmt.Sprintf(`DELETE FROM %q`, s.Name),
	}
	if s.Kind == QueueKindAutoresponder {
		statements = append(statements, fmt.Sprintf(`DROP INDEX IF EXISTS %q`, s.SendAtIndexName()))
	}
	statements = append(statements,
		fmt.Sprintf(`ALTER TABLE %q DROP CONSTRAINT IF EXISTS %q`, s.Name, s.ForeignKeyName()),
		fmt.Sprintf(`DROP TABLE IF EXISTS %q`, s.Name),
	)
	return statements
}

// QueueEntry is one subscriber still owed a delivery attempt.
type QueueEntry struct {
	SubscriberID int64
	SendAt       *time.Time
	Failures     int
}

// NewEntry builds a row of the right shape; sendAt is ignored for regular tables.
func (s QueueTableSchema) NewEntry(subscriberID int64, sendAt time.Time) QueueEntry {
	entry := QueueEntry{SubscriberID: subscriberID}
	if s.Kind == QueueKindAutoresponder {
		at := sendAt
		entry.SendAt = &at
	}
	return entry
}

func (s QueueTableSchema) Validate(e QueueEntry) error {
	if e.SubscriberID <= 0 {
		return fmt.Errorf("%w: subscriber id is required", ErrValidation)
	}
	switch s.Kind {
	case QueueKindAutoresponder:
		if e.SendAt == nil {
			return fmt.Errorf("%w: send_at is required on autoresponder queues", ErrValidation)
		}
		if e.Failures != 0 {
			return fmt.Errorf("%w: failures are not tracked on autoresponder queues", ErrValidation)
		}
	default:
		if e.SendAt != nil {
			return fmt.Errorf("%w: send_at is not allowed on regular queues", ErrValidation)
		}
		if e.Failures < 0 {
			return fmt.Errorf("%w: failures must not be negative", ErrValidation)
		}
	}
	return nil
}

// Row maps an entry onto the table columns.
func (s QueueTableSchema) Row(e QueueEntry) map[string]any {
	if s.Kind == QueueKindAutoresponder {
		return map[string]any{
			"subscriber_id": e.SubscriberID,
			"send_at":       *e.SendAt,
		}
	}
	return map[string]any{
		"subscriber_id": e.SubscriberID,
		"failures":      e.Failures,
	}
}
