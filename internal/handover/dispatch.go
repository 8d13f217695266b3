// Package handover routes named operations to the key handover services.
// Each entry in the dispatch table names the permission it needs and the
// payload type it decodes.
package handover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"key-service/internal/ledger"
	"key-service/internal/overdue"
	"key-service/internal/rbac"
	"key-service/internal/registry"
	"key-service/internal/sharing"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

type Operation string

const (
	OpRequest          Operation = "request"
	OpApprove          Operation = "approve"
	OpMintProof        Operation = "mint_proof"
	OpCollect          Operation = "collect"
	OpDeposit          Operation = "deposit"
	OpExtend           Operation = "extend"
	OpForceReturn      Operation = "force_return"
	OpCancel           Operation = "cancel"
	OpDelegate         Operation = "delegate"
	OpRevokeDelegation Operation = "revoke_delegation"
	OpCancelDelegation Operation = "cancel_delegation"
	OpSendReminders    Operation = "send_reminders"
	OpSetKeyStatus     Operation = "set_key_status"
)

const (
	errUnknownOperationFmt = "unknown operation: %s"
	errPayloadInvalidFmt   = "invalid %s payload: %v"
	errPayloadTrailing     = "payload must contain a single JSON object"
	errActorRequired       = "actor is required"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID      uuid.UUID
	Subject *rbac.AuthSubject
}

// Services are the components operations run against.
type Services struct {
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Sharing  *sharing.Manager
	Monitor  *overdue.Monitor
}

type handlerFunc func(ctx context.Context, actor Actor, payload []byte) (any, error)

type entry struct {
	resource rbac.Resource
	action   rbac.Action
	handle   handlerFunc
}

type Dispatcher struct {
	services Services
	checker  *rbac.Checker
	logger   *slog.Logger
	table    map[Operation]entry
}

func NewDispatcher(services Services, checker *rbac.Checker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		services: services,
		checker:  checker,
		logger:   logger,
		table:    make(map[Operation]entry),
	}
	d.registerAll()
	return d
}

// register binds op to fn, decoding the payload strictly into P first.
func register[P any](d *Dispatcher, op Operation, resource rbac.Resource, action rbac.Action, fn func(ctx context.Context, actor Actor, p P) (any, error)) {
	d.table[op] = entry{
		resource: resource,
		action:   action,
		handle: func(ctx context.Context, actor Actor, payload []byte) (any, error) {
			var p P
			if err := decodeStrict(payload, &p); err != nil {
				return nil, apperrors.Validation(fmt.Sprintf(errPayloadInvalidFmt, op, err))
			}
			return fn(ctx, actor, p)
		},
	}
}

// Operations lists the registered operation names in sorted order.
func (d *Dispatcher) Operations() []Operation {
	ops := make([]Operation, 0, len(d.table))
	for op := range d.table {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Dispatch authorizes actor for op and runs it with payload.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation, actor Actor, payload []byte) (any, error) {
	e, ok := d.table[op]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf(errUnknownOperationFmt, op))
	}
	if actor.ID == uuid.Nil {
		return nil, apperrors.Unauthorized(errActorRequired)
	}
	if err := d.checker.Authorize(actor.Subject, e.resource, e.action); err != nil {
		return nil, apperrors.Permission(err.Error())
	}

	result, err := e.handle(ctx, actor, payload)
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			d.logger.Error("operation failed",
				slog.String("operation", string(op)),
				slog.String("actor_id", actor.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	return result, nil
}

// can reports whether actor may additionally perform action on resource.
func (d *Dispatcher) can(actor Actor, resource rbac.Resource, action rbac.Action) bool {
	return d.checker.IsAuthorized(actor.Subject, resource, action)
}

func decodeStrict(payload []byte, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New(errPayloadTrailing)
	}
	return nil
}
