package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// Client starts ingest workflows on Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return newClient(c, taskQueue, logger), nil
}

func newClient(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}
}

// StartIngest starts an IngestEventsWorkflow and returns without waiting for it.
func (c *Client) StartIngest(ctx context.Context, input IngestEventsInput) (workflowID, runID string, err error) {
	run, err := c.start(ctx, input)
	if err != nil {
		return "", "", err
	}
	return run.GetID(), run.GetRunID(), nil
}

// Ingest starts an IngestEventsWorkflow and waits for its result.
func (c *Client) Ingest(ctx context.Context, input IngestEventsInput) (*IngestEventsResult, error) {
	run, err := c.start(ctx, input)
	if err != nil {
		return nil, err
	}

	var result *IngestEventsResult
	if err := run.Get(ctx, &result); err != nil {
		c.logger.Error("ingest workflow failed",
			"workflow_id", run.GetID(),
			"error", err,
		)
		return nil, fmt.Errorf("ingest workflow %s failed: %w", run.GetID(), err)
	}

	c.logger.Info("ingest workflow completed",
		"workflow_id", run.GetID(),
		"decoded", result.Decoded,
		"failed", result.Failed,
	)
	return result, nil
}

func (c *Client) start(ctx context.Context, input IngestEventsInput) (client.WorkflowRun, error) {
	if len(input.Documents) == 0 {
		return nil, fmt.Errorf("no documents to ingest")
	}

	options := client.StartWorkflowOptions{
		ID:        "ingest-" + uuid.NewString(),
		TaskQueue: c.taskQueue,
	}

	c.logger.Debug("starting ingest workflow",
		"workflow_id", options.ID,
		"documents", len(input.Documents),
		"archive", input.Archive,
		"publish", input.Publish,
	)

	run, err := c.client.ExecuteWorkflow(ctx, options, IngestEventsWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start ingest workflow",
			"workflow_id", options.ID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to start ingest workflow: %w", err)
	}

	c.logger.Info("ingest workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
