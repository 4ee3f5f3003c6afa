// Package reconcile implements the reconciliation engine. Machine-proposed
// changes to the canonical listing store are grouped into reviewable batches;
// nothing mutates a listing until a proposal is approved.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/events"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// Store is the persistence the engine needs for batches and proposals.
type Store interface {
	CreateBatchWithProposals(ctx context.Context, batch *models.SyncBatch, proposals []*models.SyncProposal) error
	GetBatch(ctx context.Context, id string) (*models.SyncBatch, error)
	GetBatchByDedupKey(ctx context.Context, key string) (*models.SyncBatch, error)
	GetProposal(ctx context.Context, id string) (*models.SyncProposal, error)
	ListBatchProposals(ctx context.Context, batchID string) ([]*models.SyncProposal, error)
	ApplyDecisions(ctx context.Context, batchID string, batchStatus models.BatchStatus, decisions []models.ProposalDecision, mutations models.ListingMutations) error
	MarkExpired(ctx context.Context, batchID string) error
	ListExpiredDue(ctx context.Context, now time.Time) ([]*models.SyncBatch, error)
}

// DraftStore reads extracted draft content.
type DraftStore interface {
	GetDraft(ctx context.Context, id string) (*models.DraftListing, error)
}

// ListingStore reads canonical listings for staleness checks and mutation
// planning.
type ListingStore interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	GetMany(ctx context.Context, ids []string) ([]*models.Listing, error)
}

// Service is the reconciliation engine.
type Service struct {
	store     Store
	drafts    DraftStore
	listings  ListingStore
	publisher *events.Publisher
	logger    logger.Logger
	batchTTL  time.Duration
	now       func() time.Time
}

// NewService creates a new reconciliation service.
func NewService(
	store Store,
	drafts DraftStore,
	listings ListingStore,
	publisher *events.Publisher,
	log logger.Logger,
	batchTTL time.Duration,
) *Service {
	return &Service{
		store:     store,
		drafts:    drafts,
		listings:  listings,
		publisher: publisher,
		logger:    log,
		batchTTL:  batchTTL,
		now:       time.Now,
	}
}

// ProposalSpec describes one proposal to create.
type ProposalSpec struct {
	Op     models.Operation
	Reason string
}

// CreateBatch creates a batch and all its proposals atomically. dedupKey
// makes creation idempotent: a batch already recorded under the key is
// returned as-is, so duplicate completion signals never produce duplicate
// batches.
func (s *Service) CreateBatch(ctx context.Context, websiteID *string, dedupKey string, specs []ProposalSpec) (*models.SyncBatch, error) {
	if dedupKey == "" {
		return nil, apperrors.Validationf("dedup key is required")
	}
	if len(specs) == 0 {
		return nil, apperrors.Validationf("batch requires at least one proposal")
	}

	if existing, err := s.store.GetBatchByDedupKey(ctx, dedupKey); err == nil {
		s.logger.Debug("Batch already exists for dedup key",
			logger.String("dedup_key", dedupKey),
			logger.String("batch_id", existing.ID),
		)
		return existing, nil
	}

	proposals := make([]*models.SyncProposal, 0, len(specs))
	for _, spec := range specs {
		kind, targetID, draftID, sourceIDs := models.Flatten(spec.Op)
		if kind == "" {
			return nil, apperrors.Validationf("unknown proposal operation")
		}
		// Round-trip through the record form to reject invalid reference
		// combinations before anything is written.
		if _, err := models.OperationFromRecord(kind, targetID, draftID, sourceIDs); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		proposals = append(proposals, &models.SyncProposal{
			Op:        spec.Op,
			OpKind:    kind,
			TargetID:  targetID,
			DraftID:   draftID,
			SourceIDs: sourceIDs,
			Reason:    spec.Reason,
		})
	}

	batch := &models.SyncBatch{
		WebsiteID: websiteID,
		DedupKey:  dedupKey,
		ExpiresAt: s.now().Add(s.batchTTL),
	}
	if err := s.store.CreateBatchWithProposals(ctx, batch, proposals); err != nil {
		return nil, err
	}

	s.publisher.PublishAsync(events.Event{
		EventType: events.EventBatchCreated,
		EntityID:  batch.ID,
		Detail: map[string]any{
			"dedup_key": dedupKey,
			"proposals": len(proposals),
		},
	})

	s.logger.Info("Sync batch created",
		logger.String("batch_id", batch.ID),
		logger.String("dedup_key", dedupKey),
		logger.Int("proposals", len(proposals)),
	)

	return batch, nil
}

// OpenCrawlBatch turns a finished crawl's drafts into a batch of insert
// proposals keyed by the crawl's job id.
func (s *Service) OpenCrawlBatch(ctx context.Context, jobID, websiteID string, drafts []*models.DraftListing) (*models.SyncBatch, error) {
	specs := make([]ProposalSpec, 0, len(drafts))
	for _, draft := range drafts {
		specs = append(specs, ProposalSpec{
			Op:     models.InsertOp{DraftID: draft.ID},
			Reason: fmt.Sprintf("extracted %q during crawl", draft.Content.Title),
		})
	}
	return s.CreateBatch(ctx, &websiteID, jobID, specs)
}

// ApproveProposal approves one proposal and applies its canonical-store
// mutations. Re-approving an already-approved proposal is a no-op returning
// the same state.
func (s *Service) ApproveProposal(ctx context.Context, proposalID string) (*models.SyncProposal, error) {
	return s.decideProposal(ctx, proposalID, models.ProposalApproved)
}

// RejectProposal rejects one proposal. Idempotent like ApproveProposal.
func (s *Service) RejectProposal(ctx context.Context, proposalID string) (*models.SyncProposal, error) {
	return s.decideProposal(ctx, proposalID, models.ProposalRejected)
}

func (s *Service) decideProposal(ctx context.Context, proposalID string, decision models.ProposalStatus) (*models.SyncProposal, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	batch, err := s.store.GetBatch(ctx, proposal.BatchID)
	if err != nil {
		return nil, err
	}
	if err = s.checkExpiry(ctx, batch, proposal); err != nil {
		return nil, err
	}

	if proposal.Status == decision {
		return proposal, nil // idempotent re-decision
	}
	if proposal.Status != models.ProposalPending {
		return nil, apperrors.Validationf("proposal %s already decided as %s", proposalID, proposal.Status)
	}

	var mutations models.ListingMutations
	if decision == models.ProposalApproved {
		mutations, err = s.planApproval(ctx, proposal)
		if err != nil {
			return nil, err
		}
	}

	batchStatus, err := s.deriveWithDecisions(ctx, batch,
		map[string]models.ProposalStatus{proposalID: decision})
	if err != nil {
		return nil, err
	}

	decisions := []models.ProposalDecision{{ProposalID: proposalID, Status: decision}}
	if err = s.store.ApplyDecisions(ctx, batch.ID, batchStatus, decisions, mutations); err != nil {
		return nil, err
	}

	s.publishDecided(batch.ID, batchStatus, 1)

	return s.store.GetProposal(ctx, proposalID)
}

// ApproveBatch applies an approval to every still-pending proposal of the
// batch atomically: if any member cannot be applied, nothing is mutated.
func (s *Service) ApproveBatch(ctx context.Context, batchID string) (*models.SyncBatch, error) {
	return s.decideBatch(ctx, batchID, models.ProposalApproved)
}

// RejectBatch rejects every still-pending proposal of the batch atomically.
func (s *Service) RejectBatch(ctx context.Context, batchID string) (*models.SyncBatch, error) {
	return s.decideBatch(ctx, batchID, models.ProposalRejected)
}

func (s *Service) decideBatch(ctx context.Context, batchID string, decision models.ProposalStatus) (*models.SyncBatch, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err = s.checkExpiry(ctx, batch, nil); err != nil {
		return nil, err
	}

	proposals, err := s.store.ListBatchProposals(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var decisions []models.ProposalDecision
	var mutations models.ListingMutations
	pendingDecisions := make(map[string]models.ProposalStatus)

	for _, proposal := range proposals {
		if proposal.Status != models.ProposalPending {
			continue
		}
		if decision == models.ProposalApproved {
			planned, planErr := s.planApproval(ctx, proposal)
			if planErr != nil {
				return nil, fmt.Errorf("proposal %s: %w", proposal.ID, planErr)
			}
			mutations.Merge(planned)
		}
		decisions = append(decisions, models.ProposalDecision{ProposalID: proposal.ID, Status: decision})
		pendingDecisions[proposal.ID] = decision
	}

	if len(decisions) == 0 {
		return batch, nil // nothing pending; no-op
	}

	batchStatus, err := s.deriveWithDecisions(ctx, batch, pendingDecisions)
	if err != nil {
		return nil, err
	}

	if err = s.store.ApplyDecisions(ctx, batchID, batchStatus, decisions, mutations); err != nil {
		return nil, err
	}

	s.publishDecided(batchID, batchStatus, len(decisions))

	return s.store.GetBatch(ctx, batchID)
}

// checkExpiry enforces the TTL: decisions on a batch whose TTL elapsed with
// pending proposals fail, and the batch is marked expired on first contact.
func (s *Service) checkExpiry(ctx context.Context, batch *models.SyncBatch, proposal *models.SyncProposal) error {
	if batch.Status == models.BatchExpired {
		return fmt.Errorf("%w: batch %s", apperrors.ErrBatchExpired, batch.ID)
	}

	stillOpen := batch.Status == models.BatchPending || batch.Status == models.BatchPartiallyReviewed
	if stillOpen && s.now().After(batch.ExpiresAt) {
		// Already-decided proposals stay decided; only pending ones void.
		if proposal == nil || proposal.Status == models.ProposalPending {
			if err := s.store.MarkExpired(ctx, batch.ID); err != nil {
				return err
			}
			return fmt.Errorf("%w: batch %s", apperrors.ErrBatchExpired, batch.ID)
		}
	}

	return nil
}

// planApproval computes the canonical-store mutations for approving one
// proposal, failing with ErrStaleProposal when the referenced listings were
// already resolved by a competing decision.
func (s *Service) planApproval(ctx context.Context, proposal *models.SyncProposal) (models.ListingMutations, error) {
	var mutations models.ListingMutations

	switch op := proposal.Op.(type) {
	case models.InsertOp:
		draft, err := s.drafts.GetDraft(ctx, op.DraftID)
		if err != nil {
			return mutations, err
		}
		listing := &models.Listing{
			WebsiteID: &draft.WebsiteID,
			Status:    models.ListingActive,
			Tags:      draft.Content.Tags,
		}
		listing.ApplyDraft(draft.Content)
		mutations.Creates = append(mutations.Creates, listing)

	case models.UpdateOp:
		target, err := s.activeTarget(ctx, op.TargetID)
		if err != nil {
			return mutations, err
		}
		draft, err := s.drafts.GetDraft(ctx, op.DraftID)
		if err != nil {
			return mutations, err
		}
		target.ApplyDraft(draft.Content)
		mutations.Updates = append(mutations.Updates, target)

	case models.DeleteOp:
		if _, err := s.activeTarget(ctx, op.TargetID); err != nil {
			return mutations, err
		}
		mutations.ArchiveIDs = append(mutations.ArchiveIDs, op.TargetID)

	case models.MergeOp:
		target, err := s.activeTarget(ctx, op.TargetID)
		if err != nil {
			return mutations, err
		}

		sources, err := s.listings.GetMany(ctx, op.SourceIDs)
		if err != nil {
			return mutations, err
		}
		if len(sources) != len(op.SourceIDs) {
			return mutations, fmt.Errorf("%w: merge source missing", apperrors.ErrStaleProposal)
		}
		for _, source := range sources {
			if source.Status == models.ListingArchived {
				return mutations, fmt.Errorf("%w: merge source %s already archived",
					apperrors.ErrStaleProposal, source.ID)
			}
		}

		if op.DraftID != nil {
			draft, draftErr := s.drafts.GetDraft(ctx, *op.DraftID)
			if draftErr != nil {
				return mutations, draftErr
			}
			target.ApplyDraft(draft.Content)
		}
		// The merge leaves exactly one active listing: the target.
		target.Status = models.ListingActive
		mutations.Updates = append(mutations.Updates, target)
		mutations.ArchiveIDs = append(mutations.ArchiveIDs, op.SourceIDs...)

	default:
		return mutations, apperrors.Validationf("proposal %s has no operation", proposal.ID)
	}

	return mutations, nil
}

// activeTarget loads a target listing, rejecting targets a competing
// resolution already archived.
func (s *Service) activeTarget(ctx context.Context, id string) (*models.Listing, error) {
	target, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: target listing %s not found", apperrors.ErrStaleProposal, id)
	}
	if target.Status == models.ListingArchived {
		return nil, fmt.Errorf("%w: target listing %s already archived", apperrors.ErrStaleProposal, id)
	}
	return target, nil
}

// deriveWithDecisions recomputes the batch status as if the given decisions
// were applied. The result is written in the same transaction as the
// decisions themselves, so the stored status cannot drift from the members.
func (s *Service) deriveWithDecisions(ctx context.Context, batch *models.SyncBatch, decisions map[string]models.ProposalStatus) (models.BatchStatus, error) {
	proposals, err := s.store.ListBatchProposals(ctx, batch.ID)
	if err != nil {
		return "", err
	}

	statuses := make([]models.ProposalStatus, 0, len(proposals))
	for _, proposal := range proposals {
		if decided, ok := decisions[proposal.ID]; ok {
			statuses = append(statuses, decided)
			continue
		}
		statuses = append(statuses, proposal.Status)
	}

	return models.DeriveBatchStatus(statuses, batch.ExpiresAt, s.now()), nil
}

// SweepExpired marks every batch whose TTL elapsed with pending proposals as
// expired. Returns the number of batches voided.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	due, err := s.store.ListExpiredDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, batch := range due {
		if markErr := s.store.MarkExpired(ctx, batch.ID); markErr != nil {
			s.logger.Error("Failed to expire batch",
				logger.String("batch_id", batch.ID),
				logger.Error(markErr),
			)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Expired sync batches", logger.Int("count", expired))
	}

	return expired, nil
}

func (s *Service) publishDecided(batchID string, status models.BatchStatus, decided int) {
	s.publisher.PublishAsync(events.Event{
		EventType: events.EventBatchDecided,
		EntityID:  batchID,
		Detail: map[string]any{
			"batch_status": string(status),
			"decided":      decided,
		},
	})
}
