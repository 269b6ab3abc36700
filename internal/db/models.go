package db

import (
	"encoding/json"
	"time"
)

// RawRecord maps skim.raw_records. The payload is stored verbatim; the record
// is mutated exactly once after creation to set structured_ref.
type RawRecord struct {
	RawRecordID   int64           `gorm:"column:raw_record_id;primaryKey;autoIncrement"`
	RawRecordUUID string          `gorm:"column:raw_record_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source        string          `gorm:"column:source;type:text;not null"`
	ExternalID    *string         `gorm:"column:external_id;type:text"`
	Payload       json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	PayloadHash   []byte          `gorm:"column:payload_hash;type:bytea;not null"`
	StructuredRef *int64          `gorm:"column:structured_ref;type:bigint"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (RawRecord) TableName() string { return "skim.raw_records" }

// StructuredRecord maps skim.structured_records, the normalized queryable
// projection of one raw record. raw_ref is required at creation and unique.
type StructuredRecord struct {
	StructuredRecordID   int64           `gorm:"column:structured_record_id;primaryKey;autoIncrement"`
	StructuredRecordUUID string          `gorm:"column:structured_record_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RawRef               int64           `gorm:"column:raw_ref;type:bigint;not null;unique"`
	Type                 string          `gorm:"column:type;type:text;not null"`
	Source               string          `gorm:"column:source;type:text;not null"`
	ExternalID           *string         `gorm:"column:external_id;type:text"`
	Title                string          `gorm:"column:title;type:text;not null"`
	SourceURL            *string         `gorm:"column:source_url;type:text"`
	URLKey               *string         `gorm:"column:url_key;type:text"`
	URLHash              []byte          `gorm:"column:url_hash;type:bytea"`
	Authors              json.RawMessage `gorm:"column:authors;type:jsonb"`
	PublishedAt          *time.Time      `gorm:"column:published_at;type:timestamptz"`
	Language             string          `gorm:"column:language;type:text;not null;default:und"`
	TitleSimhash         *int64          `gorm:"column:title_simhash;type:bigint"`
	ContentSimhash       *int64          `gorm:"column:content_simhash;type:bigint"`
	AuthorTimeKey        *int64          `gorm:"column:author_time_key;type:bigint"`
	TokenCount           int             `gorm:"column:token_count;type:integer;not null;default:0"`
	CreatedAt            time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StructuredRecord) TableName() string { return "skim.structured_records" }

// DedupEvent maps skim.dedup_events, one row per classifier verdict.
type DedupEvent struct {
	DedupEventID   int64     `gorm:"column:dedup_event_id;primaryKey;autoIncrement"`
	DedupEventUUID string    `gorm:"column:dedup_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source         string    `gorm:"column:source;type:text;not null"`
	ExternalID     *string   `gorm:"column:external_id;type:text"`
	URLKey         *string   `gorm:"column:url_key;type:text"`
	Decision       string    `gorm:"column:decision;type:text;not null"`
	MatchStage     *string   `gorm:"column:match_stage;type:text"`
	MatchedRawRef  *int64    `gorm:"column:matched_raw_ref;type:bigint"`
	TitleScore     *float64  `gorm:"column:title_score;type:double precision"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupEvent) TableName() string { return "skim.dedup_events" }

// IngestRun maps skim.ingest_runs, the per-batch ledger.
type IngestRun struct {
	RunID         int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	IngestRunUUID string     `gorm:"column:ingest_run_uuid;type:uuid;not null;unique"`
	Source        string     `gorm:"column:source;type:text;not null"`
	StartedAt     time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt    *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status        string     `gorm:"column:status;type:text;not null;default:running"`
	ItemsFetched  int        `gorm:"column:items_fetched;type:integer;not null;default:0"`
	ItemsInserted int        `gorm:"column:items_inserted;type:integer;not null;default:0"`
	ItemsSkipped  int        `gorm:"column:items_skipped;type:integer;not null;default:0"`
	ItemsFailed   int        `gorm:"column:items_failed;type:integer;not null;default:0"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestRun) TableName() string { return "skim.ingest_runs" }

func autoMigrateModels() []any {
	return []any{
		&RawRecord{},
		&StructuredRecord{},
		&DedupEvent{},
		&IngestRun{},
	}
}
