package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriteriaAccepts(t *testing.T) {
	criteria := NewCriteria([]uint64{1, 2}, map[uint64]float64{1: 0.1})

	tests := []struct {
		name      string
		jobID     uint64
		specID    uint64
		bountyEth float64
		want      bool
	}{
		{"approved spec, bounty above minimum", 1, 1, 0.2, true},
		{"approved spec, bounty exactly at minimum", 2, 1, 0.1, true},
		{"approved spec, bounty below minimum", 3, 1, 0.05, false},
		{"approved spec without minimum accepts any bounty", 4, 2, 0.001, true},
		{"unapproved spec rejected regardless of bounty", 5, 6, 10.0, false},
		{"zero bounty on spec without minimum", 6, 2, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob(tt.jobID, tt.specID, eth(tt.bountyEth))
			assert.Equal(t, tt.want, criteria.Accepts(job))
		})
	}
}

func TestCriteriaNilBounty(t *testing.T) {
	criteria := NewCriteria([]uint64{1}, map[uint64]float64{1: 0.1})
	job := testJob(1, 1, nil)
	assert.False(t, criteria.Accepts(job))

	noMin := NewCriteria([]uint64{1}, nil)
	assert.True(t, noMin.Accepts(job))
}
