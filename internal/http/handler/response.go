package handler

import (
	"net/http"

	"key-service/internal/view"

	"github.com/labstack/echo/v4"
)

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondList[T any](c echo.Context, items []T, limit, offset int) error {
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, listResponse[T]{Items: items, Count: len(items), Limit: limit, Offset: offset})
}

type operationResponse struct {
	Operation string `json:"operation"`
	Result    any    `json:"result"`
}

func respondOperation(c echo.Context, op string, result any) error {
	return c.JSON(http.StatusOK, operationResponse{Operation: op, Result: view.Render(result)})
}
