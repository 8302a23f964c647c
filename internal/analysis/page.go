package analysis

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cellgraph/engine/internal/anomaly"
	"github.com/cellgraph/engine/internal/costdriver"
)

// PageCursor is an opaque, offset-based pagination token over one of
// AnalysisResult's ordered lists (anomalies or cost drivers). Unlike the
// teacher's workbook-scoped cursor, there is no workbook id, write-
// version, or search hash to carry: a Result is a single immutable
// in-memory document, so an offset plus page size round-trips cleanly.
type PageCursor struct {
	V   int   `json:"v"`
	Off int   `json:"off"`
	Ps  int   `json:"ps"`
	Iat int64 `json:"iat"`
}

const defaultPageSize = 100

// EncodeCursor serializes and URL-safe-base64-encodes c.
func EncodeCursor(c PageCursor) (string, error) {
	if err := validateCursor(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor reverses EncodeCursor, validating the decoded fields.
func DecodeCursor(token string) (*PageCursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("page: empty cursor")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("page: invalid base64: %w", err)
	}
	var c PageCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("page: invalid json: %w", err)
	}
	if err := validateCursor(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func validateCursor(c *PageCursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if c.Off < 0 {
		return errors.New("page: off must be >= 0")
	}
	if c.Ps <= 0 {
		c.Ps = defaultPageSize
	}
	return nil
}

// page returns one slice of all starting from cursor (empty string for
// the first page) and the cursor for the following page ("" once the
// list is exhausted). PageAnomalies and PageCostDrivers are thin,
// type-specific wrappers around this for callers that don't want to
// name the type parameter themselves.
func page[T any](all []T, cursor string, pageSize int) (slice []T, next string, err error) {
	off, ps, err := resolvePage(cursor, pageSize)
	if err != nil {
		return nil, "", err
	}
	if off >= len(all) {
		return nil, "", nil
	}
	end := off + ps
	if end > len(all) {
		end = len(all)
	}
	slice = all[off:end]
	if end < len(all) {
		next, err = EncodeCursor(PageCursor{V: 1, Off: end, Ps: ps, Iat: time.Now().Unix()})
		if err != nil {
			return nil, "", err
		}
	}
	return slice, next, nil
}

// PageAnomalies pages Result.Anomalies.Anomalies.
func PageAnomalies(all []anomaly.Anomaly, cursor string, pageSize int) ([]anomaly.Anomaly, string, error) {
	return page(all, cursor, pageSize)
}

// PageCostDrivers pages Result.CostDrivers.TopDrivers.
func PageCostDrivers(all []costdriver.CostDriver, cursor string, pageSize int) ([]costdriver.CostDriver, string, error) {
	return page(all, cursor, pageSize)
}

func resolvePage(cursor string, pageSize int) (off, ps int, err error) {
	ps = pageSize
	if ps <= 0 {
		ps = defaultPageSize
	}
	if cursor == "" {
		return 0, ps, nil
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return 0, 0, err
	}
	return c.Off, c.Ps, nil
}
