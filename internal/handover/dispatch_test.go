package handover_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/handover"
	"key-service/internal/proof"
	"key-service/internal/rbac"
	"key-service/internal/rbac/presets"
	"key-service/internal/testkit"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*handover.Dispatcher, *testkit.Harness) {
	t.Helper()
	h := testkit.New(t)
	d := handover.NewDispatcher(handover.Services{
		Registry: h.Registry,
		Ledger:   h.Ledger,
		Sharing:  h.Sharing,
		Monitor:  h.Monitor,
	}, rbac.MustNew(presets.KeyHandover()), nil)
	return d, h
}

func user(role rbac.Role) handover.Actor {
	return handover.Actor{ID: uuid.New(), Subject: &rbac.AuthSubject{Type: rbac.AuthTypeJWT, UserRole: role}}
}

func station() handover.Actor {
	return handover.Actor{
		ID:      uuid.New(),
		Subject: &rbac.AuthSubject{Type: rbac.AuthTypeStation, Permissions: []rbac.Permission{presets.PermissionHandover}},
	}
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchTableCoversEveryOperation(t *testing.T) {
	d, _ := newDispatcher(t)

	assert.ElementsMatch(t, []handover.Operation{
		handover.OpRequest, handover.OpApprove, handover.OpMintProof, handover.OpCollect,
		handover.OpDeposit, handover.OpExtend, handover.OpForceReturn, handover.OpCancel,
		handover.OpDelegate, handover.OpRevokeDelegation, handover.OpCancelDelegation,
		handover.OpSendReminders, handover.OpSetKeyStatus,
	}, d.Operations())
}

func TestDispatchRejections(t *testing.T) {
	d, h := newDispatcher(t)
	k := h.Key(t)

	tests := []struct {
		name    string
		op      handover.Operation
		actor   handover.Actor
		payload string
		want    error
	}{
		{"unknown operation", "teleport", user(presets.RoleAdmin), `{}`, apperrors.ErrValidation},
		{"unknown field", handover.OpRequest, user(presets.RoleMember), `{"keyId":"` + k.ID.String() + `","hours":2}`, apperrors.ErrValidation},
		{"trailing data", handover.OpRequest, user(presets.RoleMember), `{"keyId":"` + k.ID.String() + `"}{}`, apperrors.ErrValidation},
		{"missing key", handover.OpRequest, user(presets.RoleMember), `{"durationHours":2}`, apperrors.ErrValidation},
		{"collect without token", handover.OpCollect, station(), fmt.Sprintf(`{"assignmentId":%q}`, uuid.New()), apperrors.ErrMalformedProof},
		{"deposit with null token", handover.OpDeposit, station(), fmt.Sprintf(`{"assignmentId":%q,"token":null}`, uuid.New()), apperrors.ErrMalformedProof},
		{"collect without assignment", handover.OpCollect, station(), `{"token":"x"}`, apperrors.ErrValidation},
		{"member cannot force return", handover.OpForceReturn, user(presets.RoleMember), `{}`, apperrors.ErrPermission},
		{"member cannot set key status", handover.OpSetKeyStatus, user(presets.RoleMember), `{}`, apperrors.ErrPermission},
		{"station cannot request", handover.OpRequest, station(), `{}`, apperrors.ErrPermission},
		{"anonymous", handover.OpRequest, handover.Actor{}, `{}`, apperrors.ErrUnauthorized},
		{"member cannot request for others", handover.OpRequest, user(presets.RoleMember),
			fmt.Sprintf(`{"keyId":%q,"durationHours":2,"holderId":%q}`, k.ID, uuid.New()), apperrors.ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), tt.op, tt.actor, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDispatchHandoverFlow(t *testing.T) {
	d, h := newDispatcher(t)
	ctx := context.Background()
	k := h.Key(t)
	holder := user(presets.RoleMember)
	desk := station()

	out, err := d.Dispatch(ctx, handover.OpRequest, holder, payload(t, map[string]any{"keyId": k.ID, "durationHours": 4}))
	require.NoError(t, err)
	a := out.(*assignment.Assignment)
	assert.Equal(t, holder.ID, a.HolderID)

	out, err = d.Dispatch(ctx, handover.OpMintProof, holder, payload(t, map[string]any{"assignmentId": a.ID, "action": "collection"}))
	require.NoError(t, err)
	tok := out.(proof.Token)
	assert.Equal(t, holder.ID, tok.HolderID)

	// The token may be embedded as an object.
	_, err = d.Dispatch(ctx, handover.OpCollect, desk, payload(t, map[string]any{"assignmentId": a.ID, "token": tok}))
	require.NoError(t, err)

	out, err = d.Dispatch(ctx, handover.OpMintProof, holder, payload(t, map[string]any{"assignmentId": a.ID, "action": "deposit"}))
	require.NoError(t, err)
	raw, err := out.(proof.Token).Encode()
	require.NoError(t, err)

	// Or as a string.
	out, err = d.Dispatch(ctx, handover.OpDeposit, desk, payload(t, map[string]any{"assignmentId": a.ID, "token": raw}))
	require.NoError(t, err)
	returned := out.(*assignment.Assignment)
	assert.Equal(t, assignment.StatusReturned, returned.Status)
	assert.Equal(t, desk.ID, *returned.ReturnVerifiedBy)

	_, err = d.Dispatch(ctx, handover.OpDeposit, desk, payload(t, map[string]any{"assignmentId": a.ID}))
	assert.ErrorIs(t, err, apperrors.ErrMalformedProof)
}

func TestDispatchCancelOwnership(t *testing.T) {
	d, h := newDispatcher(t)
	ctx := context.Background()
	k := h.Key(t)
	holder := user(presets.RoleMember)

	out, err := d.Dispatch(ctx, handover.OpRequest, holder, payload(t, map[string]any{"keyId": k.ID, "durationHours": 1}))
	require.NoError(t, err)
	a := out.(*assignment.Assignment)

	_, err = d.Dispatch(ctx, handover.OpCancel, user(presets.RoleMember), payload(t, map[string]any{"assignmentId": a.ID}))
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	out, err = d.Dispatch(ctx, handover.OpCancel, holder, payload(t, map[string]any{"assignmentId": a.ID, "reason": "plans changed"}))
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCancelled, out.(*assignment.Assignment).Status)
}

func TestDispatchDelegationAndAdmin(t *testing.T) {
	d, h := newDispatcher(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)
	holder := handover.Actor{ID: a.HolderID, Subject: &rbac.AuthSubject{Type: rbac.AuthTypeJWT, UserRole: presets.RoleMember}}
	admin := user(presets.RoleAdmin)

	out, err := d.Dispatch(ctx, handover.OpDelegate, holder, payload(t, map[string]any{
		"keyId": k.ID, "delegateId": uuid.New(), "durationHours": 2,
		"permissions": map[string]bool{"canCollect": false, "canReturn": true, "canDelegate": false},
	}))
	require.NoError(t, err)
	grant := out.(*delegation.Delegation)
	assert.False(t, grant.Permissions.CanCollect)

	out, err = d.Dispatch(ctx, handover.OpRevokeDelegation, admin, payload(t, map[string]any{"delegationId": grant.ID}))
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusRevoked, out.(*delegation.Delegation).Status)

	out, err = d.Dispatch(ctx, handover.OpExtend, admin, payload(t, map[string]any{"assignmentId": a.ID, "extraHours": 2}))
	require.NoError(t, err)
	assert.Equal(t, a.DueDate.Add(2*time.Hour), out.(*assignment.Assignment).DueDate)

	_, err = d.Dispatch(ctx, handover.OpSetKeyStatus, admin, payload(t, map[string]any{"keyId": k.ID, "status": "lost"}))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = d.Dispatch(ctx, handover.OpForceReturn, admin, payload(t, map[string]any{"assignmentId": a.ID}))
	require.NoError(t, err)

	out, err = d.Dispatch(ctx, handover.OpSetKeyStatus, admin, payload(t, map[string]any{"keyId": k.ID, "status": "lost"}))
	require.NoError(t, err)
	assert.Equal(t, key.StatusLost, out.(*key.Key).Status)

	out, err = d.Dispatch(ctx, handover.OpSendReminders, admin, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
