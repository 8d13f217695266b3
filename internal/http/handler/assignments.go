package handler

import (
	"net/http"

	"key-service/internal/auth"
	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/rbac"
	"key-service/internal/rbac/presets"
	"key-service/internal/view"
	apperrors "key-service/pkg/errors"

	"github.com/labstack/echo/v4"
)

const msgAssignmentNotVisible = "assignment not found"

// AssignmentHandler serves assignment, delegation and overdue reads.
// Callers who cannot approve assignments only see their own.
type AssignmentHandler struct {
	assignments AssignmentReader
	delegations DelegationReader
	overdue     OverdueLister
	checker     *rbac.Checker
}

func NewAssignmentHandler(assignments AssignmentReader, delegations DelegationReader, overdue OverdueLister, checker *rbac.Checker) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		delegations: delegations,
		overdue:     overdue,
		checker:     checker,
	}
}

func (h *AssignmentHandler) seesAll(c echo.Context) bool {
	return h.checker.IsAuthorized(auth.GetSubject(c), presets.ResourceAssignment, presets.ActionApprove)
}

func (h *AssignmentHandler) ListAssignments(c echo.Context) error {
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	keyID, err := queryUUID(c, queryKeyID)
	if err != nil {
		return err
	}
	holderID, err := queryUUID(c, queryHolderID)
	if err != nil {
		return err
	}

	if !h.seesAll(c) {
		actorID, err := auth.GetActorID(c)
		if err != nil {
			return err
		}
		holderID = &actorID
	}

	items, err := h.assignments.List(c.Request().Context(), assignment.ListAssignmentsFilter{
		KeyID:    keyID,
		HolderID: holderID,
		Statuses: queryList[assignment.Status](c, queryStatus),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return err
	}

	return respondList(c, view.Assignments(items), limit, offset)
}

func (h *AssignmentHandler) GetAssignment(c echo.Context) error {
	a, err := h.visibleAssignment(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view.FromAssignment(a))
}

func (h *AssignmentHandler) ListAssignmentDelegations(c echo.Context) error {
	a, err := h.visibleAssignment(c)
	if err != nil {
		return err
	}

	items, err := h.delegations.List(c.Request().Context(), delegation.ListDelegationsFilter{
		AssignmentID: &a.ID,
		Statuses:     queryList[delegation.Status](c, queryStatus),
	})
	if err != nil {
		return err
	}

	return respondList(c, view.Delegations(items), 0, 0)
}

// GetDelegation is visible to staff and to both parties of the grant.
func (h *AssignmentHandler) GetDelegation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	d, err := h.delegations.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	if !h.seesAll(c) {
		actorID, err := auth.GetActorID(c)
		if err != nil {
			return err
		}
		if d.DelegatorID != actorID && d.DelegateID != actorID {
			return apperrors.NotFound(msgAssignmentNotVisible)
		}
	}

	return c.JSON(http.StatusOK, view.FromDelegation(d))
}

func (h *AssignmentHandler) ListOverdue(c echo.Context) error {
	items, err := h.overdue.ListOverdue(c.Request().Context())
	if err != nil {
		return err
	}
	return respondList(c, view.Assignments(items), 0, 0)
}

// visibleAssignment loads the path assignment, hiding other holders'
// assignments from members.
func (h *AssignmentHandler) visibleAssignment(c echo.Context) (*assignment.Assignment, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}

	a, err := h.assignments.Get(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}

	if !h.seesAll(c) {
		actorID, err := auth.GetActorID(c)
		if err != nil {
			return nil, err
		}
		if a.HolderID != actorID {
			return nil, apperrors.NotFound(msgAssignmentNotVisible)
		}
	}
	return a, nil
}
