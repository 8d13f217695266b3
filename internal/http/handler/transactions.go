package handler

import (
	"net/http"

	"key-service/internal/archive"
	"key-service/internal/domain/transaction"
	"key-service/internal/realtime"
	"key-service/internal/view"

	"github.com/labstack/echo/v4"
)

// TransactionHandler serves the transaction log. The streamer and archiver
// are optional.
type TransactionHandler struct {
	log      TransactionQuerier
	stream   TransactionStreamer
	archiver TransactionArchiver
}

func NewTransactionHandler(log TransactionQuerier, stream TransactionStreamer, archiver TransactionArchiver) *TransactionHandler {
	return &TransactionHandler{log: log, stream: stream, archiver: archiver}
}

func (h *TransactionHandler) ListTransactions(c echo.Context) error {
	filter, err := transactionFilter(c)
	if err != nil {
		return err
	}

	items, err := h.log.Query(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	return respondList(c, view.Transactions(items), filter.Limit, filter.Offset)
}

// Stream upgrades to a WebSocket carrying every newly appended transaction,
// optionally narrowed to one key.
func (h *TransactionHandler) Stream(c echo.Context) error {
	if h.stream == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgStreamUnavailable)
	}
	keyID, err := queryUUID(c, queryKeyID)
	if err != nil {
		return err
	}
	return h.stream.Serve(c.Response(), c.Request(), realtime.Filter{KeyID: keyID})
}

// Archive exports a time range of the log to object storage.
func (h *TransactionHandler) Archive(c echo.Context) error {
	if h.archiver == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgArchiveDisabled)
	}

	var req archive.Request
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	result, err := h.archiver.Export(c.Request().Context(), req)
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if result.Count == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, result)
}

func transactionFilter(c echo.Context) (transaction.ListTransactionsFilter, error) {
	var (
		filter transaction.ListTransactionsFilter
		err    error
	)

	if filter.Limit, filter.Offset, err = page(c); err != nil {
		return filter, err
	}
	if filter.KeyID, err = queryUUID(c, queryKeyID); err != nil {
		return filter, err
	}
	if filter.AssignmentID, err = queryUUID(c, queryAssignmentID); err != nil {
		return filter, err
	}
	if filter.DelegationID, err = queryUUID(c, queryDelegationID); err != nil {
		return filter, err
	}
	if filter.ActorID, err = queryUUID(c, queryActorID); err != nil {
		return filter, err
	}
	if filter.Since, err = queryTime(c, querySince); err != nil {
		return filter, err
	}
	if filter.Until, err = queryTime(c, queryUntil); err != nil {
		return filter, err
	}
	filter.Types = queryList[transaction.Type](c, queryType)
	filter.Statuses = queryList[transaction.Status](c, queryStatus)

	return filter, nil
}
