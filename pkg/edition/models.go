package edition

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// LongText is a string column that holds inline images of any size. MySQL
// TEXT stops at 64 KiB, so it maps to LONGTEXT there.
type LongText string

// GormDBDataType picks the column type per dialect.
func (LongText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return longTextType(db)
}

func longTextType(db *gorm.DB) string {
	if db.Dialector.Name() == "mysql" {
		return "longtext"
	}
	return "text"
}

// JSONMap is a map[string]any persisted as a JSON text column.
type JSONMap map[string]any

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// GormDBDataType picks the column type per dialect. Event values carry
// whole field values, images included.
func (JSONMap) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return longTextType(db)
}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// EditionRecord is the single state row of a registry. Its primary key is
// always TokenID.
type EditionRecord struct {
	ID              uint64     `gorm:"primaryKey;column:id;autoIncrement:false"`
	Variant         string     `gorm:"column:variant;not null"`
	ContractAddress string     `gorm:"column:contract_address;type:varchar(42)"`
	Name            string     `gorm:"column:name"`
	Symbol          string     `gorm:"column:symbol"`
	Owner           string     `gorm:"column:owner;type:varchar(42)"`
	Minted          bool       `gorm:"column:minted;not null"`
	Holder          string     `gorm:"column:holder;type:varchar(42)"`
	OffChainURI     LongText   `gorm:"column:off_chain_uri"`
	OnChainMetadata LongText   `gorm:"column:on_chain_metadata"`
	OnChainImage    LongText   `gorm:"column:on_chain_image"`
	DeployedAt      *time.Time `gorm:"column:deployed_at"`
	MintedAt        *time.Time `gorm:"column:minted_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (EditionRecord) TableName() string { return "editions" }

// Deployed reports whether the constructor has run.
func (r *EditionRecord) Deployed() bool { return r.Owner != "" }

func (r *EditionRecord) field(f Field) string {
	switch f {
	case FieldOffChainURI:
		return string(r.OffChainURI)
	case FieldOnChainMetadata:
		return string(r.OnChainMetadata)
	case FieldOnChainImage:
		return string(r.OnChainImage)
	}
	return ""
}

func (r *EditionRecord) setField(f Field, value string) {
	switch f {
	case FieldOffChainURI:
		r.OffChainURI = LongText(value)
	case FieldOnChainMetadata:
		r.OnChainMetadata = LongText(value)
	case FieldOnChainImage:
		r.OnChainImage = LongText(value)
	}
}

// EventRecord is one entry of the registry's append-only event log. Seq is
// assigned inside the mutating transaction and gives the total order of
// mutations.
type EventRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Seq       uint64    `gorm:"column:seq;uniqueIndex:idx_edition_event_seq;not null"`
	Kind      EventKind `gorm:"column:kind;index;not null"`
	Actor     string    `gorm:"column:actor;type:varchar(42)"`
	TokenID   uint64    `gorm:"column:token_id"`
	OldValue  JSONMap   `gorm:"column:old_value"`
	NewValue  JSONMap   `gorm:"column:new_value"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "edition_events" }
