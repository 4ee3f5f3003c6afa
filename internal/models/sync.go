package models

import (
	"fmt"
	"time"
)

// BatchStatus is the derived review state of a sync batch. It is never
// written independently; it is recomputed from member proposal statuses in
// the same transaction as any proposal-status write.
type BatchStatus string

const (
	BatchPending           BatchStatus = "pending"
	BatchPartiallyReviewed BatchStatus = "partially_reviewed"
	BatchApproved          BatchStatus = "approved"
	BatchRejected          BatchStatus = "rejected"
	BatchCompleted         BatchStatus = "completed"
	BatchExpired           BatchStatus = "expired"
)

// ProposalStatus is the review state of one proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// OpKind names a proposal operation variant.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
	OpMerge  OpKind = "merge"
)

// Operation is the tagged union of proposal operations. Each variant carries
// only the references that apply to it, so invalid combinations cannot be
// constructed.
type Operation interface {
	Kind() OpKind
}

// InsertOp creates a new listing from draft content.
type InsertOp struct {
	DraftID string
}

// UpdateOp overwrites a target listing's fields from draft content.
type UpdateOp struct {
	TargetID string
	DraftID  string
}

// DeleteOp archives a target listing.
type DeleteOp struct {
	TargetID string
}

// MergeOp archives every source listing and, if a draft is present, applies
// its content to the target, consolidating duplicates into one listing.
type MergeOp struct {
	TargetID  string
	SourceIDs []string
	DraftID   *string
}

func (InsertOp) Kind() OpKind { return OpInsert }
func (UpdateOp) Kind() OpKind { return OpUpdate }
func (DeleteOp) Kind() OpKind { return OpDelete }
func (MergeOp) Kind() OpKind  { return OpMerge }

// OperationFromRecord reconstructs the union from its flattened database
// columns, validating that only the applicable references are present.
func OperationFromRecord(kind OpKind, targetID, draftID *string, sourceIDs []string) (Operation, error) {
	switch kind {
	case OpInsert:
		if draftID == nil || targetID != nil || len(sourceIDs) > 0 {
			return nil, fmt.Errorf("insert requires draft_entity_id only")
		}
		return InsertOp{DraftID: *draftID}, nil
	case OpUpdate:
		if draftID == nil || targetID == nil || len(sourceIDs) > 0 {
			return nil, fmt.Errorf("update requires target_entity_id and draft_entity_id")
		}
		return UpdateOp{TargetID: *targetID, DraftID: *draftID}, nil
	case OpDelete:
		if targetID == nil || draftID != nil || len(sourceIDs) > 0 {
			return nil, fmt.Errorf("delete requires target_entity_id only")
		}
		return DeleteOp{TargetID: *targetID}, nil
	case OpMerge:
		if targetID == nil || len(sourceIDs) == 0 {
			return nil, fmt.Errorf("merge requires target_entity_id and merge_source_ids")
		}
		return MergeOp{TargetID: *targetID, SourceIDs: sourceIDs, DraftID: draftID}, nil
	default:
		return nil, fmt.Errorf("unknown operation kind: %q", kind)
	}
}

// Flatten returns the database-column representation of an operation.
func Flatten(op Operation) (kind OpKind, targetID, draftID *string, sourceIDs []string) {
	switch v := op.(type) {
	case InsertOp:
		return OpInsert, nil, &v.DraftID, nil
	case UpdateOp:
		return OpUpdate, &v.TargetID, &v.DraftID, nil
	case DeleteOp:
		return OpDelete, &v.TargetID, nil, nil
	case MergeOp:
		return OpMerge, &v.TargetID, v.DraftID, v.SourceIDs
	default:
		return "", nil, nil, nil
	}
}

// SyncProposal is one atomic proposed change to the canonical store.
type SyncProposal struct {
	ID        string         `json:"id" db:"id"`
	BatchID   string         `json:"batch_id" db:"batch_id"`
	Op        Operation      `json:"-"`
	OpKind    OpKind         `json:"operation" db:"operation"`
	TargetID  *string        `json:"target_entity_id,omitempty" db:"target_entity_id"`
	DraftID   *string        `json:"draft_entity_id,omitempty" db:"draft_entity_id"`
	SourceIDs StringArray    `json:"merge_source_ids,omitempty" db:"merge_source_ids"`
	Status    ProposalStatus `json:"status" db:"status"`
	Reason    string         `json:"reason" db:"reason"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	DecidedAt *time.Time     `json:"decided_at,omitempty" db:"decided_at"`
}

// SyncBatch groups proposals created atomically together. DedupKey is the
// triggering crawl's job id; duplicate completion signals for the same job
// never create a second batch.
type SyncBatch struct {
	ID        string      `json:"id" db:"id"`
	WebsiteID *string     `json:"website_id,omitempty" db:"website_id"`
	DedupKey  string      `json:"dedup_key" db:"dedup_key"`
	Status    BatchStatus `json:"status" db:"status"`
	ExpiresAt time.Time   `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// DeriveBatchStatus computes batch status as a pure function of member
// proposal statuses and the batch expiry:
//
//	no proposal decided            -> pending
//	some decided, some pending     -> partially_reviewed
//	all approved (and applied)     -> completed
//	all rejected                   -> rejected
//	mix of approved and rejected,
//	none pending                   -> completed
//	TTL elapsed, any still pending -> expired
func DeriveBatchStatus(statuses []ProposalStatus, expiresAt, now time.Time) BatchStatus {
	var pending, approved, rejected int
	for _, s := range statuses {
		switch s {
		case ProposalPending:
			pending++
		case ProposalApproved:
			approved++
		case ProposalRejected:
			rejected++
		}
	}

	if pending > 0 {
		if now.After(expiresAt) {
			return BatchExpired
		}
		if approved+rejected > 0 {
			return BatchPartiallyReviewed
		}
		return BatchPending
	}

	if approved == 0 && rejected > 0 {
		return BatchRejected
	}
	return BatchCompleted
}
