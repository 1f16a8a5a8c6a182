package ingestion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Columns maps catalog fields to the header names that may carry them.
// Header matching is case-insensitive; the first alias present wins.
type Columns struct {
	UniqueKey      []string `yaml:"unique_key" json:"unique_key"`
	Title          []string `yaml:"title" json:"title"`
	Description    []string `yaml:"description" json:"description"`
	StyleNumber    []string `yaml:"style_number" json:"style_number"`
	MainframeColor []string `yaml:"mainframe_color" json:"mainframe_color"`
	Size           []string `yaml:"size" json:"size"`
	ColorName      []string `yaml:"color_name" json:"color_name"`
	PiecePrice     []string `yaml:"piece_price" json:"piece_price"`
	// KeepUnmapped stores columns that match no field in the row's extra map.
	KeepUnmapped bool `yaml:"keep_unmapped" json:"keep_unmapped"`
}

type ColumnsConfig struct {
	Columns Columns `yaml:"columns" json:"columns"`
}

func DefaultColumns() Columns {
	return Columns{
		UniqueKey:      []string{"UNIQUE_KEY"},
		Title:          []string{"PRODUCT_TITLE"},
		Description:    []string{"PRODUCT_DESCRIPTION"},
		StyleNumber:    []string{"STYLE#"},
		MainframeColor: []string{"SANMAR_MAINFRAME_COLOR"},
		Size:           []string{"SIZE"},
		ColorName:      []string{"COLOR_NAME"},
		PiecePrice:     []string{"PIECE_PRICE"},
		KeepUnmapped:   true,
	}
}

// LoadColumns reads a column mapping from YAML. Fields the file leaves empty
// keep their default header names.
func LoadColumns(path string) (Columns, error) {
	if path == "" {
		return DefaultColumns(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultColumns(), err
	}

	cfg := ColumnsConfig{Columns: Columns{KeepUnmapped: true}}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Columns{}, fmt.Errorf("parsing column mapping: %w", err)
	}

	cols := cfg.Columns
	defaults := DefaultColumns()
	fill := func(dst *[]string, def []string) {
		if len(*dst) == 0 {
			*dst = def
		}
	}
	fill(&cols.UniqueKey, defaults.UniqueKey)
	fill(&cols.Title, defaults.Title)
	fill(&cols.Description, defaults.Description)
	fill(&cols.StyleNumber, defaults.StyleNumber)
	fill(&cols.MainframeColor, defaults.MainframeColor)
	fill(&cols.Size, defaults.Size)
	fill(&cols.ColorName, defaults.ColorName)
	fill(&cols.PiecePrice, defaults.PiecePrice)

	for _, alias := range cols.UniqueKey {
		if alias == "" {
			return Columns{}, errors.New("column mapping has an empty unique_key alias")
		}
	}
	return cols, nil
}
