package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/logging"

	"go.uber.org/zap"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

var requiredColumns = []string{"key", "sku", "name", "price", "currency", "stock"}

// CSVImporter reads a catalog export with stock levels and upserts every row
// by product key.
type CSVImporter struct {
	reader   *csv.Reader
	products ProductWriter
	logger   *zap.Logger
}

func NewCSVImporter(r io.Reader, products ProductWriter, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:   csvr,
		products: products,
		logger:   logging.OrNop(logger),
	}
}

// Run imports rows until EOF and returns how many products were written.
// It stops at the first invalid row; earlier rows stay imported.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return 0, fmt.Errorf("missing column %q", col)
		}
	}

	imported := 0
	line := 1
	for {
		record, err := i.reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		p, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", line, err)
		}
		saved, err := i.products.Upsert(ctx, p)
		if err != nil {
			return imported, fmt.Errorf("upsert product %q: %w", p.Key, err)
		}
		i.logger.Debug("imported product", zap.String("key", saved.Key), zap.String("product_id", saved.ID), zap.Int("stock", saved.Stock))
		imported++
	}
	return imported, nil
}

func parseRow(record []string, index map[string]int) (domain.Product, error) {
	p := domain.Product{
		ID:          pick(record, index, "id"),
		Key:         pick(record, index, "key"),
		SKU:         pick(record, index, "sku"),
		Name:        pick(record, index, "name"),
		Description: pick(record, index, "description"),
		Currency:    strings.ToUpper(pick(record, index, "currency")),
		ImageURL:    pick(record, index, "image_url"),
	}
	if p.Key == "" || p.SKU == "" || p.Name == "" || p.Currency == "" {
		return p, fmt.Errorf("missing required fields for key %q", p.Key)
	}

	price, err := strconv.ParseInt(pick(record, index, "price"), 10, 64)
	if err != nil || price <= 0 {
		return p, fmt.Errorf("invalid price for key %q", p.Key)
	}
	p.PriceCents = price

	stock, err := strconv.Atoi(pick(record, index, "stock"))
	if err != nil || stock < 0 {
		return p, fmt.Errorf("invalid stock for key %q", p.Key)
	}
	p.Stock = stock

	if raw := pick(record, index, "weight_grams"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w < 0 {
			return p, fmt.Errorf("invalid weight for key %q", p.Key)
		}
		p.WeightGrams = w
	}
	return p, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
