package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/veriline/veriline-backend/pkg/bigquery"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer appends decision rows to the BigQuery ledger with bounded retries
// on transient faults.
type Writer struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

// NewWriter creates a ledger writer backed by a shared BigQuery client.
func NewWriter(client *pkgbigquery.Client, table string, retry RetryPolicy) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("decisions table is required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}
	return &Writer{client: client, table: table, retry: retry}, nil
}

// Insert appends one decision row.
func (w *Writer) Insert(ctx context.Context, row DecisionRow) error {
	return w.insertWithRetry(ctx, []any{&row})
}

func (w *Writer) insertWithRetry(ctx context.Context, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, w.retry.MaximumBackoff)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		if rowErr == nil || len(rowErr.Errors) == 0 {
			return false
		}
		for _, inner := range rowErr.Errors {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}

func encodeJSON(payload json.RawMessage) cbigquery.NullJSON {
	if len(payload) == 0 {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(payload)}
}
