package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"key-service/internal/auth"
	"key-service/internal/handover"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	contentTypeJSON          = "application/json"
	maxStrictBodyBytes int64 = 1 << 20 // Keep parser bound aligned with global body limit.
)

func bindStrictJSON(c echo.Context, dst interface{}) error {
	if !strings.HasPrefix(strings.ToLower(c.Request().Header.Get(echo.HeaderContentType)), contentTypeJSON) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, msgContentTypeJSONRequired)
	}

	body := io.LimitReader(c.Request().Body, maxStrictBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}

	return nil
}

// readBody returns the raw request body, bounded like bindStrictJSON.
func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxStrictBodyBytes))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}
	return body, nil
}

func actorFrom(c echo.Context) (handover.Actor, error) {
	id, err := auth.GetActorID(c)
	if err != nil {
		return handover.Actor{}, err
	}
	return handover.Actor{ID: id, Subject: auth.GetSubject(c)}, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(paramID))
	if err != nil {
		return uuid.Nil, apperrors.Validation(fmt.Sprintf(msgInvalidIDFmt, paramID))
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf(msgInvalidIDFmt, name))
	}
	return &id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation(fmt.Sprintf(msgInvalidIntFmt, name))
	}
	return n, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.Validation(fmt.Sprintf(msgInvalidBoolFmt, name))
	}
	return b, nil
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf(msgInvalidTimeFmt, name))
	}
	return &t, nil
}

// queryList splits a comma separated parameter into typed values.
func queryList[T ~string](c echo.Context, name string) []T {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	var out []T
	for _, part := range strings.Split(raw, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, T(part))
		}
	}
	return out
}

// page reads limit and offset.
func page(c echo.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, queryLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, queryOffset); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
