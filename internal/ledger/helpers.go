package ledger

import (
	"fmt"

	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/proof"

	"github.com/google/uuid"
)

func overrideMessage(status key.Status) string {
	return fmt.Sprintf(errKeyUnderOverrideFmt, status)
}

func delegationFilter(assignmentID, delegateID uuid.UUID, limit int) delegation.ListDelegationsFilter {
	return delegation.ListDelegationsFilter{
		AssignmentID: &assignmentID,
		DelegateID:   &delegateID,
		Limit:        limit,
	}
}

func delegationID(grant *proof.Grant) *uuid.UUID {
	if grant.Delegation == nil {
		return nil
	}
	id := grant.Delegation.ID
	return &id
}

func handoverMetadata(grant *proof.Grant, verifierID uuid.UUID) map[string]any {
	metadata := map[string]any{
		"verifiedBy":   verifierID.String(),
		"presentedBy":  grant.PresentedBy().String(),
		"tokenIssued":  grant.Token.IssuedAt,
		"tokenExpires": grant.Token.ExpiresAt,
	}
	if grant.Delegation != nil {
		metadata["viaDelegation"] = true
	}
	return metadata
}

func cancelDetails(reason string) string {
	if reason == "" {
		return transaction.DefaultDetails(transaction.TypeCancelled)
	}
	return transaction.DefaultDetails(transaction.TypeCancelled) + ": " + reason
}
