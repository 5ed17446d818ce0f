package temporal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

// QueryProgress is the query name used to retrieve ingestion workflow progress.
// It lives here rather than in the workflows package so callers can query
// without importing workflow code.
const QueryProgress = "progress"

// IngestionWorkflowName is the registered name of the ingestion workflow.
const IngestionWorkflowName = "IngestionWorkflow"

const (
	// DefaultWorkflowExecutionTimeout bounds one ingestion workflow run.
	DefaultWorkflowExecutionTimeout = 2 * time.Hour

	// DefaultHealthCheckTimeout is the timeout for Temporal server health checks.
	DefaultHealthCheckTimeout = 5 * time.Second
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a workflow with the same ID is already running.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrWorkflowAlreadyCompleted indicates the workflow has already completed.
	ErrWorkflowAlreadyCompleted = errors.New("workflow already completed")

	// ErrQueryFailed indicates the workflow query failed.
	ErrQueryFailed = errors.New("query failed")

	// ErrSignalFailed indicates the workflow signal failed.
	ErrSignalFailed = errors.New("signal failed")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNamespaceNotFound indicates the namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceExhausted indicates resource limits have been reached.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrDeadlineExceeded indicates the operation deadline was exceeded.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// =============================================================================
// Error Helpers
// =============================================================================

// TemporalError wraps a Temporal error with additional context.
type TemporalError struct {
	Op         string // Operation that failed
	Kind       error  // Category of error (sentinel)
	WorkflowID string // Workflow ID (if applicable)
	RunID      string // Run ID (if applicable)
	Err        error  // Underlying error
}

// Error returns the error message.
func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s", e.WorkflowID)
		if e.RunID != "" {
			msg += fmt.Sprintf(", runID=%s", e.RunID)
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TemporalError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error's Kind.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapTemporalError converts a Temporal SDK error to a TemporalError.
func wrapTemporalError(op string, err error, workflowID, runID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{
		Op:         op,
		WorkflowID: workflowID,
		RunID:      runID,
		Err:        err,
	}

	// Map Temporal service errors to sentinel errors
	var notFoundErr *serviceerror.NotFound
	var alreadyStartedErr *serviceerror.WorkflowExecutionAlreadyStarted
	var namespaceNotFoundErr *serviceerror.NamespaceNotFound
	var permissionDeniedErr *serviceerror.PermissionDenied
	var invalidArgumentErr *serviceerror.InvalidArgument
	var resourceExhaustedErr *serviceerror.ResourceExhausted
	var deadlineExceededErr *serviceerror.DeadlineExceeded
	var queryFailedErr *serviceerror.QueryFailed
	var unavailableErr *serviceerror.Unavailable

	switch {
	case errors.As(err, &notFoundErr):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStartedErr):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.As(err, &namespaceNotFoundErr):
		te.Kind = ErrNamespaceNotFound
	case errors.As(err, &permissionDeniedErr):
		te.Kind = ErrPermissionDenied
	case errors.As(err, &invalidArgumentErr):
		te.Kind = ErrInvalidArgument
	case errors.As(err, &resourceExhaustedErr):
		te.Kind = ErrResourceExhausted
	case errors.As(err, &deadlineExceededErr):
		te.Kind = ErrDeadlineExceeded
	case errors.As(err, &queryFailedErr):
		te.Kind = ErrQueryFailed
	case errors.As(err, &unavailableErr):
		te.Kind = ErrConnectionFailed
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			te.Kind = ErrDeadlineExceeded
		} else if errors.Is(err, context.Canceled) {
			te.Kind = ErrClientClosed
		} else {
			te.Kind = ErrConnectionFailed
		}
	}

	return te
}

// IsWorkflowNotFound checks if the error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted checks if the error indicates a workflow already started.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// IsQueryFailed checks if the error indicates a query failure.
func IsQueryFailed(err error) bool {
	return errors.Is(err, ErrQueryFailed)
}

// IsConnectionFailed checks if the error indicates a connection failure.
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// =============================================================================
// TLS Configuration
// =============================================================================

// TLSConfig contains TLS configuration for the Temporal client.
type TLSConfig struct {
	// Enabled enables TLS for the connection.
	Enabled bool

	// CertPath is the path to the client certificate file (PEM format).
	CertPath string

	// KeyPath is the path to the client private key file (PEM format).
	KeyPath string

	// CACertPath is the path to the CA certificate file (PEM format).
	CACertPath string

	// ServerName is the expected server name for certificate verification.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// WARNING: This should only be used for testing/development.
	InsecureSkipVerify bool
}

// buildTLSConfig creates a *tls.Config from TLSConfig.
func (t *TLSConfig) buildTLSConfig() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify,
		ServerName:         t.ServerName,
		MinVersion:         tls.VersionTLS12,
	}

	// Load client certificate if provided
	if t.CertPath != "" && t.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	// Load CA certificate if provided
	if t.CACertPath != "" {
		caCert, err := os.ReadFile(t.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}

// =============================================================================
// Client Configuration
// =============================================================================

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the default task queue for starting workflows.
	TaskQueue string

	// TLS contains optional TLS configuration.
	TLS *TLSConfig

	// ConnectionTimeout is the timeout for establishing the connection.
	// Defaults to 10 seconds if not set.
	ConnectionTimeout time.Duration

	// HealthCheckTimeout is the timeout for health check operations.
	// Defaults to 5 seconds if not set.
	HealthCheckTimeout time.Duration

	// Logger receives the SDK's own log output. Nil keeps the SDK default.
	Logger log.Logger
}

// NewClient creates a new Temporal client with the given configuration.
func NewClient(cfg ClientConfig) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    cfg.Logger,
	}

	// Configure TLS if enabled
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("configure TLS: %w", err)
		}
		options.ConnectionOptions = client.ConnectionOptions{
			TLS: tlsConfig,
		}
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}

	return c, nil
}

// =============================================================================
// Shared Workflow Input Types
// =============================================================================

// IngestionWorkflowInput contains the parameters of one ingestion workflow run.
// It is defined here so that callers can start workflows without importing
// the workflows package.
type IngestionWorkflowInput struct {
	// Backfill runs a gap backfill pass after the cycle.
	Backfill bool

	// RequestedBy identifies who started the run, for logging.
	RequestedBy string
}

// =============================================================================
// Ingestion Workflow Client
// =============================================================================

// IngestionClient starts and inspects ingestion workflows.
type IngestionClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	healthCheckTimeout time.Duration
	closed             bool
}

// NewIngestionClient creates an IngestionClient for taskQueue.
func NewIngestionClient(c client.Client, taskQueue string) *IngestionClient {
	return NewIngestionClientWithConfig(c, ClientConfig{TaskQueue: taskQueue})
}

// NewIngestionClientWithConfig creates an IngestionClient with full configuration.
func NewIngestionClientWithConfig(c client.Client, cfg ClientConfig) *IngestionClient {
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthCheckTimeout
	}

	return &IngestionClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		healthCheckTimeout: healthTimeout,
	}
}

// Close closes the underlying Temporal client connection.
func (c *IngestionClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *IngestionClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Health checks the connection health to the Temporal server.
func (c *IngestionClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return &TemporalError{Op: "Health", Kind: ErrClientClosed}
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// StartRun starts a one-off ingestion workflow and returns its IDs.
func (c *IngestionClient) StartRun(ctx context.Context, input IngestionWorkflowInput) (workflowID, runID string, err error) {
	if c.isClosed() {
		return "", "", &TemporalError{Op: "StartRun", Kind: ErrClientClosed}
	}

	workflowID = "paper-ingest-run-" + uuid.NewString()
	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, IngestionWorkflowName, input)
	if err != nil {
		return "", "", wrapTemporalError("StartRun", err, workflowID, "")
	}
	return workflowID, run.GetRunID(), nil
}

// EnsureSchedule starts the cron ingestion workflow under the stable
// workflowID. An existing execution under that ID is left running and its
// run ID is returned.
func (c *IngestionClient) EnsureSchedule(ctx context.Context, workflowID, cronSchedule string, input IngestionWorkflowInput) (runID string, err error) {
	if c.isClosed() {
		return "", &TemporalError{Op: "EnsureSchedule", Kind: ErrClientClosed, WorkflowID: workflowID}
	}
	if workflowID == "" || cronSchedule == "" {
		return "", &TemporalError{
			Op:         "EnsureSchedule",
			Kind:       ErrInvalidArgument,
			WorkflowID: workflowID,
			Err:        errors.New("workflow ID and cron schedule are required"),
		}
	}

	options := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             c.taskQueue,
		CronSchedule:          cronSchedule,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, IngestionWorkflowName, input)
	if err != nil {
		wrapped := wrapTemporalError("EnsureSchedule", err, workflowID, "")
		if IsWorkflowAlreadyStarted(wrapped) {
			desc, derr := c.DescribeWorkflow(ctx, workflowID, "")
			if derr != nil {
				return "", derr
			}
			return desc.RunID, nil
		}
		return "", wrapped
	}
	return run.GetRunID(), nil
}

// CancelWorkflow cancels a running workflow.
func (c *IngestionClient) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	if c.isClosed() {
		return &TemporalError{Op: "CancelWorkflow", Kind: ErrClientClosed, WorkflowID: workflowID, RunID: runID}
	}

	if err := c.client.CancelWorkflow(ctx, workflowID, runID); err != nil {
		return wrapTemporalError("CancelWorkflow", err, workflowID, runID)
	}
	return nil
}

// GetWorkflowResult waits for a workflow to complete and decodes its result.
func (c *IngestionClient) GetWorkflowResult(ctx context.Context, workflowID, runID string, result interface{}) error {
	if c.isClosed() {
		return &TemporalError{Op: "GetWorkflowResult", Kind: ErrClientClosed, WorkflowID: workflowID, RunID: runID}
	}

	run := c.client.GetWorkflow(ctx, workflowID, runID)
	if err := run.Get(ctx, result); err != nil {
		return wrapTemporalError("GetWorkflowResult", err, workflowID, runID)
	}
	return nil
}

// WorkflowDescription contains information about a workflow execution.
type WorkflowDescription struct {
	WorkflowID string
	RunID      string
	Status     string
	StartTime  time.Time
	// CloseTime is nil while the workflow is running.
	CloseTime *time.Time
}

// DescribeWorkflow returns information about a workflow execution.
func (c *IngestionClient) DescribeWorkflow(ctx context.Context, workflowID, runID string) (*WorkflowDescription, error) {
	if c.isClosed() {
		return nil, &TemporalError{Op: "DescribeWorkflow", Kind: ErrClientClosed, WorkflowID: workflowID, RunID: runID}
	}

	resp, err := c.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return nil, wrapTemporalError("DescribeWorkflow", err, workflowID, runID)
	}

	info := resp.GetWorkflowExecutionInfo()
	desc := &WorkflowDescription{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		desc.CloseTime = &closeTime
	}
	return desc, nil
}

// QueryProgress queries the progress of a running ingestion workflow.
func (c *IngestionClient) QueryProgress(ctx context.Context, workflowID, runID string, result interface{}) error {
	if c.isClosed() {
		return &TemporalError{Op: "QueryProgress", Kind: ErrClientClosed, WorkflowID: workflowID, RunID: runID}
	}

	resp, err := c.client.QueryWorkflow(ctx, workflowID, runID, QueryProgress)
	if err != nil {
		return wrapTemporalError("QueryProgress", err, workflowID, runID)
	}
	if err := resp.Get(result); err != nil {
		return &TemporalError{
			Op:         "QueryProgress",
			Kind:       ErrQueryFailed,
			WorkflowID: workflowID,
			RunID:      runID,
			Err:        fmt.Errorf("decode query result: %w", err),
		}
	}
	return nil
}

// TaskQueue returns the configured task queue name.
func (c *IngestionClient) TaskQueue() string {
	return c.taskQueue
}
