package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/sanitize"
	"gorm.io/datatypes"
)

var (
	errMissingKey   = errors.New("missing unique key")
	errInvalidPrice = errors.New("invalid price")
)

// ParsePrice reads a monetary amount. A leading "$" is ignored; empty input is
// an unset price, and malformed input is an unset price plus an error.
func ParsePrice(raw *string) (decimal.NullDecimal, error) {
	if raw == nil {
		return decimal.NullDecimal{}, nil
	}
	text := strings.TrimSpace(strings.TrimPrefix(sanitize.Text(*raw), "$"))
	if text == "" {
		return decimal.NullDecimal{}, nil
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w %q", errInvalidPrice, *raw)
	}
	return decimal.NullDecimal{Decimal: value, Valid: true}, nil
}

// rowParser turns records into catalog rows using the positions found in the
// header record.
type rowParser struct {
	columns  Columns
	index    map[string]int
	names    []string
	mapped   map[int]struct{}
	keyFound bool
}

func newRowParser(header []string, columns Columns) *rowParser {
	p := &rowParser{
		columns: columns,
		index:   make(map[string]int, len(header)),
		names:   make([]string, len(header)),
		mapped:  make(map[int]struct{}),
	}
	for i, cell := range header {
		name := sanitize.Text(cell)
		p.names[i] = name
		key := strings.ToLower(name)
		if _, dup := p.index[key]; !dup && key != "" {
			p.index[key] = i
		}
	}
	for _, aliases := range [][]string{
		columns.UniqueKey, columns.Title, columns.Description, columns.StyleNumber,
		columns.MainframeColor, columns.Size, columns.ColorName, columns.PiecePrice,
	} {
		if i, ok := p.position(aliases); ok {
			p.mapped[i] = struct{}{}
		}
	}
	_, p.keyFound = p.position(columns.UniqueKey)
	return p
}

func (p *rowParser) position(aliases []string) (int, bool) {
	for _, alias := range aliases {
		if i, ok := p.index[strings.ToLower(strings.TrimSpace(alias))]; ok {
			return i, true
		}
	}
	return 0, false
}

// field returns the sanitized value, or nil when the header is absent or the
// record is too short to reach it.
func (p *rowParser) field(record []string, aliases []string) *string {
	i, ok := p.position(aliases)
	if !ok || i >= len(record) {
		return nil
	}
	return sanitize.Field(&record[i])
}

// parse builds a row. err is set when the row must be skipped; priceErr is
// informational and leaves the price unset.
func (p *rowParser) parse(record []string) (row catalog.Row, priceErr error, err error) {
	key := p.field(record, p.columns.UniqueKey)
	if key == nil || *key == "" {
		return catalog.Row{}, nil, errMissingKey
	}

	row.UniqueKey = *key
	row.Title = p.field(record, p.columns.Title)
	row.Description = truncate(p.field(record, p.columns.Description), catalog.MaxDescriptionLength)
	row.StyleNumber = p.field(record, p.columns.StyleNumber)
	row.MainframeColor = p.field(record, p.columns.MainframeColor)
	row.Size = p.field(record, p.columns.Size)
	row.ColorName = p.field(record, p.columns.ColorName)
	row.PiecePrice, priceErr = ParsePrice(p.field(record, p.columns.PiecePrice))

	if p.columns.KeepUnmapped {
		extra := datatypes.JSONMap{}
		for i, value := range record {
			if _, ok := p.mapped[i]; ok || i >= len(p.names) || p.names[i] == "" {
				continue
			}
			if cleaned := sanitize.Text(value); cleaned != "" {
				extra[p.names[i]] = cleaned
			}
		}
		if len(extra) > 0 {
			row.Extra = extra
		}
	}
	return row, priceErr, nil
}

func truncate(s *string, max int) *string {
	if s == nil || len(*s) <= max {
		return s
	}
	cut := (*s)[:max]
	return &cut
}
