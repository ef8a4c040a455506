package worker

import "github.com/ternarybob/merces/internal/models"

// Criteria is the operator's job acceptance filter. Instances are
// immutable once built; updates swap in a whole new value.
type Criteria struct {
	ApprovedSpecIDs map[uint64]bool
	MinBountyBySpec map[uint64]float64 // ETH, 0 means any bounty
}

// NewCriteria builds a filter from approved spec ids and per-spec
// minimum bounties.
func NewCriteria(approved []uint64, minBounty map[uint64]float64) Criteria {
	ids := make(map[uint64]bool, len(approved))
	for _, id := range approved {
		ids[id] = true
	}
	if minBounty == nil {
		minBounty = map[uint64]float64{}
	}
	return Criteria{
		ApprovedSpecIDs: ids,
		MinBountyBySpec: minBounty,
	}
}

// Accepts reports whether the job passes the filter: the spec must be
// approved and the bounty in ETH must meet the per-spec minimum.
func (c Criteria) Accepts(job *models.JobWithSpec) bool {
	if !c.ApprovedSpecIDs[job.SpecID] {
		return false
	}
	if job.BountyEth() < c.MinBountyBySpec[job.SpecID] {
		return false
	}
	return true
}
