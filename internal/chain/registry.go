// -----------------------------------------------------------------------
// JobRegistry contract wrapper - reads jobs/specs, submits work results
// -----------------------------------------------------------------------

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

const jobRegistryABI = `[
	{"type":"function","name":"getJob","stateMutability":"view",
	 "inputs":[{"name":"jobId","type":"uint256"}],
	 "outputs":[{"type":"tuple","components":[
		{"name":"specId","type":"uint256"},
		{"name":"inputs","type":"string"},
		{"name":"requesterContact","type":"string"},
		{"name":"token","type":"address"},
		{"name":"bounty","type":"uint256"},
		{"name":"requester","type":"address"},
		{"name":"status","type":"uint8"},
		{"name":"createdAt","type":"uint256"},
		{"name":"completedAt","type":"uint256"},
		{"name":"resultPayload","type":"string"},
		{"name":"worker","type":"address"}]}]},
	{"type":"function","name":"getJobSpec","stateMutability":"view",
	 "inputs":[{"name":"specId","type":"uint256"}],
	 "outputs":[{"type":"tuple","components":[
		{"name":"mainDomain","type":"string"},
		{"name":"notarizeUrl","type":"string"},
		{"name":"description","type":"string"},
		{"name":"promptInstructions","type":"string"},
		{"name":"outputSchema","type":"string"},
		{"name":"inputSchema","type":"string"},
		{"name":"validationRules","type":"string"},
		{"name":"creator","type":"address"},
		{"name":"createdAt","type":"uint256"},
		{"name":"active","type":"bool"}]}]},
	{"type":"function","name":"getJobCount","stateMutability":"view",
	 "inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"submitWork","stateMutability":"nonpayable",
	 "inputs":[{"name":"jobId","type":"uint256"},{"name":"resultPayload","type":"string"}],
	 "outputs":[]}
]`

// receiptPollInterval is how often WaitForReceipt re-checks the chain.
const receiptPollInterval = time.Second

type rawJob struct {
	SpecId           *big.Int
	Inputs           string
	RequesterContact string
	Token            ethcommon.Address
	Bounty           *big.Int
	Requester        ethcommon.Address
	Status           uint8
	CreatedAt        *big.Int
	CompletedAt      *big.Int
	ResultPayload    string
	Worker           ethcommon.Address
}

type rawJobSpec struct {
	MainDomain         string
	NotarizeUrl        string
	Description        string
	PromptInstructions string
	OutputSchema       string
	InputSchema        string
	ValidationRules    string
	Creator            ethcommon.Address
	CreatedAt          *big.Int
	Active             bool
}

// JobRegistry implements RegistryClient against the on-chain contract.
type JobRegistry struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	logger   arbor.ILogger
}

var _ interfaces.RegistryClient = (*JobRegistry)(nil)

func newJobRegistry(client *ethclient.Client, address ethcommon.Address, auth *bind.TransactOpts, logger arbor.ILogger) *JobRegistry {
	parsed, err := abi.JSON(strings.NewReader(jobRegistryABI))
	if err != nil {
		// The ABI is a compile-time constant; a parse failure is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("invalid job registry ABI: %v", err))
	}

	return &JobRegistry{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		auth:     auth,
		logger:   logger,
	}
}

// JobCount returns the total number of jobs ever created on the ledger.
func (r *JobRegistry) JobCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := r.contract.Call(opts, &out, "getJobCount"); err != nil {
		return 0, fmt.Errorf("getJobCount call failed: %w", err)
	}

	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return count.Uint64(), nil
}

// JobByIndex returns the job record at the given ledger index.
func (r *JobRegistry) JobByIndex(ctx context.Context, jobID uint64) (*models.Job, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := r.contract.Call(opts, &out, "getJob", new(big.Int).SetUint64(jobID)); err != nil {
		return nil, fmt.Errorf("getJob(%d) call failed: %w", jobID, err)
	}

	raw := *abi.ConvertType(out[0], new(rawJob)).(*rawJob)

	return &models.Job{
		JobID:            jobID,
		SpecID:           raw.SpecId.Uint64(),
		Inputs:           raw.Inputs,
		RequesterContact: raw.RequesterContact,
		Token:            raw.Token.Hex(),
		Bounty:           raw.Bounty,
		Requester:        raw.Requester.Hex(),
		Status:           models.JobStatus(raw.Status),
		CreatedAt:        raw.CreatedAt.Uint64(),
		CompletedAt:      raw.CompletedAt.Uint64(),
		ResultPayload:    raw.ResultPayload,
		Worker:           raw.Worker.Hex(),
	}, nil
}

// JobSpecByID returns the spec record for the given spec id.
func (r *JobRegistry) JobSpecByID(ctx context.Context, specID uint64) (*models.JobSpec, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := r.contract.Call(opts, &out, "getJobSpec", new(big.Int).SetUint64(specID)); err != nil {
		return nil, fmt.Errorf("getJobSpec(%d) call failed: %w", specID, err)
	}

	raw := *abi.ConvertType(out[0], new(rawJobSpec)).(*rawJobSpec)

	return &models.JobSpec{
		SpecID:             specID,
		MainDomain:         raw.MainDomain,
		NotarizeURL:        raw.NotarizeUrl,
		Description:        raw.Description,
		PromptInstructions: raw.PromptInstructions,
		OutputSchema:       raw.OutputSchema,
		InputSchema:        raw.InputSchema,
		ValidationRules:    raw.ValidationRules,
		Creator:            raw.Creator.Hex(),
		CreatedAt:          raw.CreatedAt.Uint64(),
		Active:             raw.Active,
	}, nil
}

// SubmitWork submits a result payload for a job and returns the
// transaction hash.
func (r *JobRegistry) SubmitWork(ctx context.Context, jobID uint64, resultPayload string) (string, error) {
	opts := *r.auth
	opts.Context = ctx

	tx, err := r.contract.Transact(&opts, "submitWork", new(big.Int).SetUint64(jobID), resultPayload)
	if err != nil {
		return "", fmt.Errorf("submitWork(%d) failed: %w", jobID, err)
	}

	r.logger.Info().
		Int64("job_id", int64(jobID)).
		Str("tx_hash", tx.Hash().Hex()).
		Msg("Work submission transaction sent")

	return tx.Hash().Hex(), nil
}

// WaitForReceipt blocks until the transaction is mined, then checks the
// receipt status. A zero status means the transaction reverted.
func (r *JobRegistry) WaitForReceipt(ctx context.Context, txHash string) error {
	hash := ethcommon.HexToHash(txHash)

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == 0 {
				return fmt.Errorf("Transaction reverted")
			}
			r.logger.Info().
				Str("tx_hash", txHash).
				Int64("block", receipt.BlockNumber.Int64()).
				Msg("Transaction confirmed")
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("failed to fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
