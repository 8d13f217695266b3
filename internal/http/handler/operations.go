package handler

import (
	"key-service/internal/handover"

	"github.com/labstack/echo/v4"
)

// OperationHandler exposes the handover dispatch table over HTTP. The body
// is passed to the operation untouched.
type OperationHandler struct {
	dispatcher OperationDispatcher
}

func NewOperationHandler(dispatcher OperationDispatcher) *OperationHandler {
	return &OperationHandler{dispatcher: dispatcher}
}

func (h *OperationHandler) Run(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	payload, err := readBody(c)
	if err != nil {
		return err
	}

	op := c.Param(paramOperation)
	result, err := h.dispatcher.Dispatch(c.Request().Context(), handover.Operation(op), actor, payload)
	if err != nil {
		return err
	}

	return respondOperation(c, op, result)
}
