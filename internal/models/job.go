// -----------------------------------------------------------------------
// Registry job model - denormalized view of on-chain jobs and specs
// -----------------------------------------------------------------------

package models

import (
	"math/big"
)

// JobStatus mirrors the registry contract's job status enum.
type JobStatus uint8

const (
	JobStatusOpen JobStatus = iota
	JobStatusCompleted
	JobStatusCancelled
	JobStatusExpired
)

// IsOpen reports whether the job can still be worked.
func (s JobStatus) IsOpen() bool {
	return s == JobStatusOpen
}

// JobSpec is a reusable on-chain task template. Read-only to this system;
// immutable once referenced by jobs except for the Active flag.
type JobSpec struct {
	SpecID             uint64 `json:"spec_id"`
	MainDomain         string `json:"main_domain"`
	NotarizeURL        string `json:"notarize_url"` // URL template with {key} placeholders
	Description        string `json:"description"`
	PromptInstructions string `json:"prompt_instructions"`
	OutputSchema       string `json:"output_schema"`
	InputSchema        string `json:"input_schema"`
	ValidationRules    string `json:"validation_rules"`
	Creator            string `json:"creator"`
	CreatedAt          uint64 `json:"created_at"` // Unix seconds, from chain
	Active             bool   `json:"active"`
}

// Job is one instance of a spec with concrete inputs and a bounty.
type Job struct {
	JobID            uint64    `json:"job_id"`
	SpecID           uint64    `json:"spec_id"`
	Inputs           string    `json:"inputs"` // JSON string of concrete inputs
	RequesterContact string    `json:"requester_contact"`
	Token            string    `json:"token"`  // Token address (zero address for ETH)
	Bounty           *big.Int  `json:"bounty"` // Bounty amount in wei
	Requester        string    `json:"requester"`
	Status           JobStatus `json:"status"`
	CreatedAt        uint64    `json:"created_at"`
	CompletedAt      uint64    `json:"completed_at"`
	ResultPayload    string    `json:"result_payload"`
	Worker           string    `json:"worker"`
}

// JobWithSpec merges a Job with its parent spec so the executor needs no
// further registry lookups. Only constructed for jobs in Open status.
type JobWithSpec struct {
	JobID            uint64   `json:"job_id"`
	SpecID           uint64   `json:"spec_id"`
	Inputs           string   `json:"inputs"`
	Bounty           *big.Int `json:"bounty"`
	Token            string   `json:"token"`
	Requester        string   `json:"requester"`
	RequesterContact string   `json:"requester_contact"`

	// Denormalized from spec
	MainDomain         string `json:"main_domain"`
	NotarizeURL        string `json:"notarize_url"`
	PromptInstructions string `json:"prompt_instructions"`
	OutputSchema       string `json:"output_schema"`
}

// NewJobWithSpec denormalizes a job with its spec.
func NewJobWithSpec(job *Job, spec *JobSpec) *JobWithSpec {
	return &JobWithSpec{
		JobID:              job.JobID,
		SpecID:             job.SpecID,
		Inputs:             job.Inputs,
		Bounty:             job.Bounty,
		Token:              job.Token,
		Requester:          job.Requester,
		RequesterContact:   job.RequesterContact,
		MainDomain:         spec.MainDomain,
		NotarizeURL:        spec.NotarizeURL,
		PromptInstructions: spec.PromptInstructions,
		OutputSchema:       spec.OutputSchema,
	}
}

var weiPerEth = new(big.Float).SetFloat64(1e18)

// BountyEth converts the wei bounty to ETH for threshold comparison.
func (j *JobWithSpec) BountyEth() float64 {
	if j.Bounty == nil {
		return 0
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(j.Bounty), weiPerEth).Float64()
	return eth
}
