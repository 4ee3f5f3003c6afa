package models

// ListingMutations is the set of canonical-store writes produced by approving
// proposals. All mutations for one decision call apply in one transaction.
type ListingMutations struct {
	Creates    []*Listing
	Updates    []*Listing
	ArchiveIDs []string
}

// Empty reports whether the mutation set contains no writes.
func (m ListingMutations) Empty() bool {
	return len(m.Creates) == 0 && len(m.Updates) == 0 && len(m.ArchiveIDs) == 0
}

// Merge folds other into m.
func (m *ListingMutations) Merge(other ListingMutations) {
	m.Creates = append(m.Creates, other.Creates...)
	m.Updates = append(m.Updates, other.Updates...)
	m.ArchiveIDs = append(m.ArchiveIDs, other.ArchiveIDs...)
}

// ProposalDecision records the resolved status for one proposal.
type ProposalDecision struct {
	ProposalID string
	Status     ProposalStatus
}
