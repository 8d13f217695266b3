// Package archive exports the transaction log to object storage as JSON Lines.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	"key-service/internal/txlog"
	"key-service/internal/view"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	contentTypeJSONLines = "application/x-ndjson"
	defaultPrefix        = "transactions"
	objectNameFmt        = "%s/%s/%d-%s.jsonl"
	datePathLayout       = "2006/01/02"

	errRangeInvalid     = "since must be before until"
	errEncodeFailedFmt  = "failed to encode transaction %s: %w"
	errUploadFailedFmt  = "failed to upload archive %s: %w"
	errPresignFailedFmt = "failed to sign archive link %s: %w"
)

// ObjectStore is where archives are written.
type ObjectStore interface {
	PutObject(ctx context.Context, objectKey string, body []byte, contentType string) error
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string) (string, error)
}

type Request struct {
	Since *time.Time `json:"since"`
	Until *time.Time `json:"until"`
	KeyID *uuid.UUID `json:"keyId"`
}

type Result struct {
	ObjectKey   string     `json:"objectKey,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	Count       int        `json:"count"`
	Since       *time.Time `json:"since,omitempty"`
	Until       time.Time  `json:"until"`
}

type Archiver struct {
	log     *txlog.Log
	objects ObjectStore
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
}

func New(log *txlog.Log, objects ObjectStore, prefix string, now func() time.Time, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{log: log, objects: objects, prefix: prefix, now: now, logger: logger}
}

// Export writes every transaction created in [since, until) to a new object,
// oldest first. Nothing is uploaded when the range is empty.
func (a *Archiver) Export(ctx context.Context, req Request) (*Result, error) {
	until := a.now().UTC()
	if req.Until != nil {
		until = req.Until.UTC()
	}
	if req.Since != nil && !req.Since.Before(until) {
		return nil, apperrors.Validation(errRangeInvalid)
	}

	txs, err := a.collect(ctx, transaction.ListTransactionsFilter{
		KeyID: req.KeyID,
		Since: req.Since,
		Until: &until,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Count: len(txs), Since: req.Since, Until: until}
	if len(txs) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range txs {
		if err := enc.Encode(view.FromTransaction(t)); err != nil {
			return nil, fmt.Errorf(errEncodeFailedFmt, t.ID, err)
		}
	}

	objectKey := fmt.Sprintf(objectNameFmt, a.prefix, until.Format(datePathLayout), until.UnixMilli(), uuid.NewString())
	if err := a.objects.PutObject(ctx, objectKey, buf.Bytes(), contentTypeJSONLines); err != nil {
		return nil, fmt.Errorf(errUploadFailedFmt, objectKey, err)
	}
	result.ObjectKey = objectKey

	url, err := a.objects.GeneratePresignedDownloadURL(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf(errPresignFailedFmt, objectKey, err)
	}
	result.DownloadURL = url

	a.logger.InfoContext(ctx, "transactions archived",
		slog.String("object_key", objectKey),
		slog.Int("count", len(txs)),
	)
	return result, nil
}

// collect pages through the log newest first and returns the entries oldest first.
func (a *Archiver) collect(ctx context.Context, filter transaction.ListTransactionsFilter) ([]*transaction.Transaction, error) {
	var all []*transaction.Transaction
	filter.Limit = repository.MaxListLimit
	for {
		page, err := a.log.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}
	slices.Reverse(all)
	return all, nil
}
