package handover

import (
	"bytes"
	"context"
	"encoding/json"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/ledger"
	"key-service/internal/overdue"
	"key-service/internal/proof"
	"key-service/internal/rbac/presets"
	"key-service/internal/sharing"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	errAssignmentIDRequired = "assignmentId is required"
	errDelegationIDRequired = "delegationId is required"
	errKeyIDRequired        = "keyId is required"
	errTokenRequired        = "token is required"
	errOnlyOwnAssignment    = "only the holder can cancel their own assignment"
	errOnlyOwnRequest       = "holderId may only be set by administrators"
)

type RequestPayload struct {
	KeyID         uuid.UUID             `json:"keyId"`
	DurationHours int                   `json:"durationHours"`
	Reason        string                `json:"reason"`
	AccessType    assignment.AccessType `json:"accessType"`
	// HolderID lets an administrator request on someone's behalf.
	HolderID *uuid.UUID `json:"holderId"`
}

type AssignmentPayload struct {
	AssignmentID uuid.UUID `json:"assignmentId"`
	Reason       string    `json:"reason"`
}

type MintProofPayload struct {
	AssignmentID uuid.UUID    `json:"assignmentId"`
	Action       proof.Action `json:"action"`
	HolderID     *uuid.UUID   `json:"holderId"`
}

// HandoverPayload carries a proof token, either as the JSON object itself
// or as a string holding it.
type HandoverPayload struct {
	AssignmentID uuid.UUID       `json:"assignmentId"`
	Token        json.RawMessage `json:"token"`
	Reason       string          `json:"reason"`
}

type ExtendPayload struct {
	AssignmentID uuid.UUID `json:"assignmentId"`
	ExtraHours   int       `json:"extraHours"`
}

type DelegatePayload struct {
	KeyID         uuid.UUID               `json:"keyId"`
	DelegateID    uuid.UUID               `json:"delegateId"`
	DurationHours int                     `json:"durationHours"`
	Message       string                  `json:"message"`
	Permissions   *delegation.Permissions `json:"permissions"`
}

type EndDelegationPayload struct {
	DelegationID uuid.UUID `json:"delegationId"`
	Reason       string    `json:"reason"`
}

type SendRemindersPayload struct {
	AssignmentIDs []uuid.UUID  `json:"assignmentIds"`
	MinTier       overdue.Tier `json:"minTier"`
}

type SetKeyStatusPayload struct {
	KeyID  uuid.UUID  `json:"keyId"`
	Status key.Status `json:"status"`
}

func (d *Dispatcher) registerAll() {
	register(d, OpRequest, presets.ResourceAssignment, presets.ActionRequest, d.request)
	register(d, OpApprove, presets.ResourceAssignment, presets.ActionApprove, d.approve)
	register(d, OpMintProof, presets.ResourceAssignment, presets.ActionProve, d.mintProof)
	register(d, OpCollect, presets.ResourceAssignment, presets.ActionHandover, d.collect)
	register(d, OpDeposit, presets.ResourceAssignment, presets.ActionHandover, d.deposit)
	register(d, OpExtend, presets.ResourceAssignment, presets.ActionManage, d.extend)
	register(d, OpForceReturn, presets.ResourceAssignment, presets.ActionManage, d.forceReturn)
	register(d, OpCancel, presets.ResourceAssignment, presets.ActionRequest, d.cancel)
	register(d, OpDelegate, presets.ResourceDelegation, presets.ActionShare, d.delegate)
	register(d, OpRevokeDelegation, presets.ResourceDelegation, presets.ActionShare, d.revokeDelegation)
	register(d, OpCancelDelegation, presets.ResourceDelegation, presets.ActionShare, d.cancelDelegation)
	register(d, OpSendReminders, presets.ResourceReminder, presets.ActionManage, d.sendReminders)
	register(d, OpSetKeyStatus, presets.ResourceKey, presets.ActionManage, d.setKeyStatus)
}

func (d *Dispatcher) request(ctx context.Context, actor Actor, p RequestPayload) (any, error) {
	if p.KeyID == uuid.Nil {
		return nil, apperrors.Validation(errKeyIDRequired)
	}
	holder := actor.ID
	if p.HolderID != nil && *p.HolderID != actor.ID {
		if !d.can(actor, presets.ResourceAssignment, presets.ActionManage) {
			return nil, apperrors.Permission(errOnlyOwnRequest)
		}
		holder = *p.HolderID
	}
	return d.services.Ledger.Request(ctx, ledger.RequestInput{
		KeyID:         p.KeyID,
		HolderID:      holder,
		DurationHours: p.DurationHours,
		Reason:        p.Reason,
		AccessType:    p.AccessType,
	})
}

func (d *Dispatcher) approve(ctx context.Context, actor Actor, p AssignmentPayload) (any, error) {
	if p.AssignmentID == uuid.Nil {
		return nil, apperrors.Validation(errAssignmentIDRequired)
	}
	return d.services.Ledger.Approve(ctx, p.AssignmentID, actor.ID)
}

// mintProof issues a token presented by the caller. Administrators may mint
// on behalf of a named holder or delegate.
func (d *Dispatcher) mintProof(ctx context.Context, actor Actor, p MintProofPayload) (any, error) {
	if p.AssignmentID == uuid.Nil {
		return nil, apperrors.Validation(errAssignmentIDRequired)
	}
	presenter := actor.ID
	if p.HolderID != nil && d.can(actor, presets.ResourceAssignment, presets.ActionManage) {
		presenter = *p.HolderID
	}
	tok, err := d.services.Ledger.MintProof(ctx, ledger.MintProofInput{
		AssignmentID: p.AssignmentID,
		Action:       p.Action,
		HolderID:     presenter,
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (d *Dispatcher) collect(ctx context.Context, actor Actor, p HandoverPayload) (any, error) {
	raw, err := p.rawToken()
	if err != nil {
		return nil, err
	}
	return d.services.Ledger.Collect(ctx, p.AssignmentID, raw, actor.ID)
}

func (d *Dispatcher) deposit(ctx context.Context, actor Actor, p HandoverPayload) (any, error) {
	raw, err := p.rawToken()
	if err != nil {
		return nil, err
	}
	return d.services.Ledger.DepositReturn(ctx, p.AssignmentID, raw, actor.ID, p.Reason)
}

func (d *Dispatcher) extend(ctx context.Context, actor Actor, p ExtendPayload) (any, error) {
	if p.AssignmentID == uuid.Nil {
		return nil, apperrors.Validation(errAssignmentIDRequired)
	}
	return d.services.Ledger.ExtendDeadline(ctx, p.AssignmentID, p.ExtraHours, actor.ID)
}

func (d *Dispatcher) forceReturn(ctx context.Context, actor Actor, p AssignmentPayload) (any, error) {
	if p.AssignmentID == uuid.Nil {
		return nil, apperrors.Validation(errAssignmentIDRequired)
	}
	return d.services.Ledger.ForceReturn(ctx, p.AssignmentID, actor.ID, p.Reason)
}

// cancel lets holders withdraw their own assignments; managers may cancel any.
func (d *Dispatcher) cancel(ctx context.Context, actor Actor, p AssignmentPayload) (any, error) {
	if p.AssignmentID == uuid.Nil {
		return nil, apperrors.Validation(errAssignmentIDRequired)
	}
	if !d.can(actor, presets.ResourceAssignment, presets.ActionManage) {
		a, err := d.services.Ledger.Get(ctx, p.AssignmentID)
		if err != nil {
			return nil, err
		}
		if a.HolderID != actor.ID {
			return nil, apperrors.Permission(errOnlyOwnAssignment)
		}
	}
	return d.services.Ledger.Cancel(ctx, p.AssignmentID, actor.ID, p.Reason)
}

func (d *Dispatcher) delegate(ctx context.Context, actor Actor, p DelegatePayload) (any, error) {
	if p.KeyID == uuid.Nil {
		return nil, apperrors.Validation(errKeyIDRequired)
	}
	return d.services.Sharing.Delegate(ctx, sharing.DelegateInput{
		KeyID:         p.KeyID,
		DelegatorID:   actor.ID,
		DelegateID:    p.DelegateID,
		DurationHours: p.DurationHours,
		Message:       p.Message,
		Permissions:   p.Permissions,
	})
}

func (d *Dispatcher) revokeDelegation(ctx context.Context, actor Actor, p EndDelegationPayload) (any, error) {
	in, err := d.endInput(actor, p)
	if err != nil {
		return nil, err
	}
	return d.services.Sharing.Revoke(ctx, in)
}

func (d *Dispatcher) cancelDelegation(ctx context.Context, actor Actor, p EndDelegationPayload) (any, error) {
	in, err := d.endInput(actor, p)
	if err != nil {
		return nil, err
	}
	return d.services.Sharing.Cancel(ctx, in)
}

func (d *Dispatcher) endInput(actor Actor, p EndDelegationPayload) (sharing.EndInput, error) {
	if p.DelegationID == uuid.Nil {
		return sharing.EndInput{}, apperrors.Validation(errDelegationIDRequired)
	}
	return sharing.EndInput{
		DelegationID:   p.DelegationID,
		ActorID:        actor.ID,
		Reason:         p.Reason,
		Administrative: d.can(actor, presets.ResourceDelegation, presets.ActionManage),
	}, nil
}

func (d *Dispatcher) sendReminders(ctx context.Context, actor Actor, p SendRemindersPayload) (any, error) {
	return d.services.Monitor.SendReminders(ctx, overdue.ReminderScope{
		AssignmentIDs: p.AssignmentIDs,
		MinTier:       p.MinTier,
		ActorID:       actor.ID,
	})
}

func (d *Dispatcher) setKeyStatus(ctx context.Context, actor Actor, p SetKeyStatusPayload) (any, error) {
	if p.KeyID == uuid.Nil {
		return nil, apperrors.Validation(errKeyIDRequired)
	}
	return d.services.Registry.SetAdministrativeStatus(ctx, p.KeyID, p.Status, actor.ID)
}

func (p HandoverPayload) rawToken() (string, error) {
	if p.AssignmentID == uuid.Nil {
		return "", apperrors.Validation(errAssignmentIDRequired)
	}
	trimmed := bytes.TrimSpace(p.Token)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", apperrors.MalformedProof(errTokenRequired)
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", apperrors.MalformedProof(err.Error())
		}
		return s, nil
	}
	return string(trimmed), nil
}
