package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const MaxDescriptionLength = 2000

type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// Attributes are the sanitized, non-key fields of a catalog row.
type Attributes struct {
	Title          *string             `json:"title" gorm:"column:product_title"`
	Description    *string             `json:"description" gorm:"column:product_description;size:2000"`
	StyleNumber    *string             `json:"style_number" gorm:"column:style_number"`
	MainframeColor *string             `json:"mainframe_color" gorm:"column:mainframe_color"`
	Size           *string             `json:"size" gorm:"column:size"`
	ColorName      *string             `json:"color_name" gorm:"column:color_name"`
	PiecePrice     decimal.NullDecimal `json:"piece_price" gorm:"column:piece_price;type:numeric(10,2)"`
	Extra          datatypes.JSONMap   `json:"extra,omitempty" gorm:"column:extra"`
}

// Row is one parsed input row ready for upsert.
type Row struct {
	UniqueKey string
	Attributes
}

// Product is the live catalog entry for a business key, owned by the file
// that last wrote it.
type Product struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	UniqueKey string `json:"unique_key" gorm:"column:unique_key;uniqueIndex;not null"`
	Attributes
	UploadedFileID uuid.UUID `json:"uploaded_file_id" gorm:"type:uuid;column:uploaded_file_id;index;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// Version is an append-only snapshot written with every upsert.
type Version struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	UniqueKey string `json:"unique_key" gorm:"column:unique_key;index:idx_product_versions_key_order,priority:1;not null"`
	Attributes
	UploadedFileID uuid.UUID `json:"uploaded_file_id" gorm:"type:uuid;column:uploaded_file_id;index;not null"`
	FileName       string    `json:"file_name" gorm:"column:file_name"`
	FileCreatedAt  time.Time `json:"file_created_at" gorm:"column:file_created_at;index:idx_product_versions_key_order,priority:2"`
	Operation      Outcome   `json:"operation" gorm:"column:operation"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Version) TableName() string {
	return "product_versions"
}
