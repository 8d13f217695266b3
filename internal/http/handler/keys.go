package handler

import (
	"net/http"
	"time"

	"key-service/internal/auth"
	"key-service/internal/domain/key"
	"key-service/internal/view"

	"github.com/labstack/echo/v4"
)

type KeyHandler struct {
	keys KeyService
}

func NewKeyHandler(keys KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

type CreateKeyRequest struct {
	Name               string `json:"name"`
	Department         string `json:"department"`
	Location           string `json:"location"`
	RequiresApproval   bool   `json:"requiresApproval"`
	MaxAssignmentHours int    `json:"maxAssignmentHours"`
}

type SetKeyStatusRequest struct {
	Status key.Status `json:"status"`
}

func (h *KeyHandler) CreateKey(c echo.Context) error {
	actorID, err := auth.GetActorID(c)
	if err != nil {
		return err
	}

	var req CreateKeyRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	k, err := h.keys.CreateKey(c.Request().Context(), key.CreateKeyInput{
		Name:                  req.Name,
		Department:            req.Department,
		Location:              req.Location,
		RequiresApproval:      req.RequiresApproval,
		MaxAssignmentDuration: time.Duration(req.MaxAssignmentHours) * time.Hour,
		CreatedBy:             actorID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, view.FromKey(k))
}

func (h *KeyHandler) GetKey(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	k, err := h.keys.GetKey(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, view.FromKey(k))
}

func (h *KeyHandler) ListKeys(c echo.Context) error {
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	retired, err := queryBool(c, queryRetired)
	if err != nil {
		return err
	}

	keys, err := h.keys.ListKeys(c.Request().Context(), key.ListKeysFilter{
		Department:     c.QueryParam(queryDepartment),
		Status:         key.Status(c.QueryParam(queryStatus)),
		IncludeRetired: retired,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return err
	}

	return respondList(c, view.Keys(keys), limit, offset)
}

// SetKeyStatus applies an administrative status override.
func (h *KeyHandler) SetKeyStatus(c echo.Context) error {
	actorID, err := auth.GetActorID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req SetKeyStatusRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	k, err := h.keys.SetAdministrativeStatus(c.Request().Context(), id, req.Status, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, view.FromKey(k))
}

// RetireKey soft-deletes a key with no outstanding assignment.
func (h *KeyHandler) RetireKey(c echo.Context) error {
	actorID, err := auth.GetActorID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	k, err := h.keys.RetireKey(c.Request().Context(), id, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, view.FromKey(k))
}
