package db

import (
	"time"
)

// Theme maps ia.themes.
type Theme struct {
	ThemeID        int64     `gorm:"column:theme_id;primaryKey;autoIncrement"`
	ThemeUUID      string    `gorm:"column:theme_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Label          string    `gorm:"column:label;type:text;not null"`
	CanonicalLabel string    `gorm:"column:canonical_label;type:text;not null;unique"`
	LabelEmbedding Vector    `gorm:"column:label_embedding;type:jsonb"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Theme) TableName() string { return "ia.themes" }

// ThemeAlias maps ia.theme_aliases.
type ThemeAlias struct {
	AliasID        int64     `gorm:"column:alias_id;primaryKey;autoIncrement"`
	AliasUUID      string    `gorm:"column:alias_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ThemeID        int64     `gorm:"column:theme_id;type:bigint;not null;uniqueIndex:uniq_theme_alias"`
	Alias          string    `gorm:"column:alias;type:text;not null"`
	CanonicalAlias string    `gorm:"column:canonical_alias;type:text;not null;uniqueIndex:uniq_theme_alias;index"`
	Confidence     float64   `gorm:"column:confidence;type:double precision;not null;default:1.0"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ThemeAlias) TableName() string { return "ia.theme_aliases" }

// ThemeMergeReinforcement maps ia.theme_merge_reinforcement. Each row records
// that a source label (and optionally its embedding) was folded into a theme,
// so later sightings of similar labels resolve to the same theme.
type ThemeMergeReinforcement struct {
	ReinforcementID int64     `gorm:"column:reinforcement_id;primaryKey;autoIncrement"`
	ThemeID         int64     `gorm:"column:theme_id;type:bigint;not null;index"`
	SourceLabel     string    `gorm:"column:source_label;type:text;not null"`
	SourceEmbedding Vector    `gorm:"column:source_embedding;type:jsonb"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ThemeMergeReinforcement) TableName() string { return "ia.theme_merge_reinforcement" }

// Narrative maps ia.narratives.
type Narrative struct {
	NarrativeID   int64     `gorm:"column:narrative_id;primaryKey;autoIncrement"`
	NarrativeUUID string    `gorm:"column:narrative_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ThemeID       int64     `gorm:"column:theme_id;type:bigint;not null;index"`
	Statement     string    `gorm:"column:statement;type:text;not null"`
	SubTheme      string    `gorm:"column:sub_theme;type:text;not null;default:''"`
	Stance        string    `gorm:"column:narrative_stance;type:text;not null;default:''"`
	Confidence    string    `gorm:"column:confidence_level;type:text;not null;default:''"`
	FirstSeenAt   time.Time `gorm:"column:first_seen_at;type:timestamptz;not null"`
	LastSeenAt    time.Time `gorm:"column:last_seen_at;type:timestamptz;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Narrative) TableName() string { return "ia.narratives" }

// Evidence maps ia.evidence.
type Evidence struct {
	EvidenceID  int64     `gorm:"column:evidence_id;primaryKey;autoIncrement"`
	NarrativeID int64     `gorm:"column:narrative_id;type:bigint;not null;index"`
	DocumentID  *int64    `gorm:"column:document_id;type:bigint"`
	Quote       string    `gorm:"column:quote;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Evidence) TableName() string { return "ia.evidence" }

// Document maps ia.documents.
type Document struct {
	DocumentID   int64     `gorm:"column:document_id;primaryKey;autoIncrement"`
	DocumentUUID string    `gorm:"column:document_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Filename     string    `gorm:"column:filename;type:text;not null"`
	StorageKey   string    `gorm:"column:storage_key;type:text;not null;unique"`
	ContentType  string    `gorm:"column:content_type;type:text;not null;default:text/plain"`
	SizeBytes    int64     `gorm:"column:size_bytes;type:bigint;not null;default:0"`
	Language     string    `gorm:"column:language;type:text;not null;default:und"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Document) TableName() string { return "ia.documents" }

// IngestJob maps ia.ingest_jobs.
type IngestJob struct {
	JobID        int64      `gorm:"column:job_id;primaryKey;autoIncrement"`
	JobUUID      string     `gorm:"column:job_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	DocumentID   int64      `gorm:"column:document_id;type:bigint;not null;index"`
	Status       string     `gorm:"column:status;type:text;not null;default:queued;index"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
	EnqueuedAt   time.Time  `gorm:"column:enqueued_at;type:timestamptz;not null;default:now()"`
	StartedAt    *time.Time `gorm:"column:started_at;type:timestamptz"`
	FinishedAt   *time.Time `gorm:"column:finished_at;type:timestamptz"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestJob) TableName() string { return "ia.ingest_jobs" }

// ThemeMentionsDaily maps ia.theme_mentions_daily.
type ThemeMentionsDaily struct {
	ThemeID      int64     `gorm:"column:theme_id;type:bigint;primaryKey"`
	Day          time.Time `gorm:"column:day;type:date;primaryKey"`
	MentionCount int       `gorm:"column:mention_count;type:integer;not null;default:0"`
}

func (ThemeMentionsDaily) TableName() string { return "ia.theme_mentions_daily" }

// ThemeRelationDaily maps ia.theme_relation_daily. Rows are stored with
// theme_id < other_theme_id so each unordered pair has one row per day.
type ThemeRelationDaily struct {
	ThemeID        int64     `gorm:"column:theme_id;type:bigint;primaryKey"`
	OtherThemeID   int64     `gorm:"column:other_theme_id;type:bigint;primaryKey"`
	Day            time.Time `gorm:"column:day;type:date;primaryKey"`
	CoMentionCount int       `gorm:"column:co_mention_count;type:integer;not null;default:0"`
}

func (ThemeRelationDaily) TableName() string { return "ia.theme_relation_daily" }

// ThemeSubThemeMentionsDaily maps ia.theme_sub_theme_mentions_daily.
type ThemeSubThemeMentionsDaily struct {
	ThemeID       int64     `gorm:"column:theme_id;type:bigint;primaryKey"`
	SubThemeLabel string    `gorm:"column:sub_theme_label;type:text;primaryKey"`
	Day           time.Time `gorm:"column:day;type:date;primaryKey"`
	MentionCount  int       `gorm:"column:mention_count;type:integer;not null;default:0"`
}

func (ThemeSubThemeMentionsDaily) TableName() string { return "ia.theme_sub_theme_mentions_daily" }

func autoMigrateModels() []any {
	return []any{
		&Theme{},
		&ThemeAlias{},
		&ThemeMergeReinforcement{},
		&Narrative{},
		&Evidence{},
		&Document{},
		&IngestJob{},
		&ThemeMentionsDaily{},
		&ThemeRelationDaily{},
		&ThemeSubThemeMentionsDaily{},
	}
}
