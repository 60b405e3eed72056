package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// MessageID is the archive and NATS message id of document index in an ingest run.
// It only depends on the workflow id, so retries and replays produce the same ids.
func MessageID(workflowID string, index int) string {
	return fmt.Sprintf("%s/%d", workflowID, index)
}

// IngestEventsWorkflow decodes a batch of Event documents and hands the decoded events to
// the archive and to NATS.
//
// The workflow performs these steps:
// 1. Decode every document (DecodeEvents activity); failures are reported, not retried
// 2. Store the decoded events in Postgres (ArchiveEvents activity), if requested
// 3. Publish the decoded events to NATS (PublishEvents activity), if requested
func IngestEventsWorkflow(ctx workflow.Context, input IngestEventsInput) (*IngestEventsResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("IngestEventsWorkflow started",
		"documents", len(input.Documents),
		"archive", input.Archive,
		"publish", input.Publish,
	)

	result := &IngestEventsResult{Received: len(input.Documents)}

	// Configure activity options
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 120 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Decode
	var decoded *DecodeEventsResult
	err := workflow.ExecuteActivity(ctx, a.DecodeEvents, DecodeEventsInput{Documents: input.Documents}).Get(ctx, &decoded)
	if err != nil {
		return result, fmt.Errorf("failed to decode events: %w", err)
	}

	result.Decoded = len(decoded.Events)
	result.Failed = len(decoded.Failures)
	result.Failures = decoded.Failures

	if len(decoded.Events) == 0 {
		logger.Info("no events decoded", "failed", result.Failed)
		return result, nil
	}

	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID
	for i := range decoded.Events {
		decoded.Events[i].MessageID = MessageID(workflowID, decoded.Events[i].Index)
	}

	// Step 2: Archive
	if input.Archive {
		var archived *ArchiveEventsResult
		err = workflow.ExecuteActivity(ctx, a.ArchiveEvents, ArchiveEventsInput{Events: decoded.Events}).Get(ctx, &archived)
		if err != nil {
			logger.Error("failed to archive events", "error", err)
			return result, fmt.Errorf("failed to archive events: %w", err)
		}
		result.Archived = archived.Inserted
		result.Duplicates = archived.Duplicates
	}

	// Step 3: Publish
	if input.Publish {
		var published *PublishEventsResult
		err = workflow.ExecuteActivity(ctx, a.PublishEvents, PublishEventsInput{Events: decoded.Events}).Get(ctx, &published)
		if err != nil {
			logger.Error("failed to publish events", "error", err)
			return result, fmt.Errorf("failed to publish events: %w", err)
		}
		result.Published = published.Published
	}

	logger.Info("IngestEventsWorkflow completed successfully",
		"received", result.Received,
		"decoded", result.Decoded,
		"failed", result.Failed,
		"archived", result.Archived,
		"published", result.Published,
	)

	return result, nil
}
