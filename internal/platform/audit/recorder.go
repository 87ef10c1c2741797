package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/internal/platform/db"
)

// Entry represents one row in the audit_log table. Input holds the sanitized
// request fields; raw request payloads never reach this struct.
type Entry struct {
	ID            uuid.UUID              `json:"id"`
	UserID        string                 `json:"userId"`
	UserRole      string                 `json:"userRole"`
	Action        string                 `json:"action"`
	ResourceType  string                 `json:"resourceType"`
	ResourceID    *uuid.UUID             `json:"resourceId,omitempty"`
	Input         map[string]interface{} `json:"input,omitempty"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	DurationMS    int64                  `json:"durationMs,omitempty"`
	PolicyVersion string                 `json:"policyVersion"`
	IPAddress     string                 `json:"ipAddress,omitempty"`
	UserAgent     string                 `json:"userAgent,omitempty"`
	RequestID     string                 `json:"requestId,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UserID       string
	Action       string
	ResourceType string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// Recorder sanitizes and persists audit entries. Entries are written to
// Postgres and mirrored to the structured log so an operator always has a
// trail even when the database write fails.
type Recorder struct {
	pool   *pgxpool.Pool
	policy *Policy
	logger zerolog.Logger
}

// NewRecorder creates a Recorder using the given policy. A nil policy falls
// back to DefaultPolicy.
func NewRecorder(pool *pgxpool.Pool, policy *Policy, logger zerolog.Logger) *Recorder {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Recorder{pool: pool, policy: policy, logger: logger}
}

// Policy returns the recorder's active sanitization policy.
func (r *Recorder) Policy() *Policy {
	return r.policy
}

// Record sanitizes the entry's input against the policy and writes the entry.
// The database write failure is logged but not returned: audit persistence
// must never fail the operation being audited, and the mirrored log line
// preserves the trail.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	entry.Input = Sanitize(r.policy, entry.Input)
	entry.PolicyVersion = r.policy.Version
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	evt := r.logger.Info()
	if !entry.Success {
		evt = r.logger.Warn()
	}
	evt.
		Str("type", "audit").
		Str("user_id", entry.UserID).
		Str("user_role", entry.UserRole).
		Str("action", entry.Action).
		Str("resource_type", entry.ResourceType).
		Bool("success", entry.Success).
		Str("error", entry.Error).
		Str("policy_version", entry.PolicyVersion).
		Str("request_id", entry.RequestID).
		Interface("input", entry.Input).
		Msg("audit")

	if err := r.insert(ctx, entry); err != nil {
		r.logger.Error().Err(err).
			Str("action", entry.Action).
			Str("resource_type", entry.ResourceType).
			Msg("failed to persist audit entry")
	}
}

// Audited runs fn and, when it succeeds with an authenticated user on the
// context, records one entry carrying the sanitized input and the elapsed
// time. Recording failures never surface to the caller.
func (r *Recorder) Audited(ctx context.Context, action, resourceType string, input map[string]interface{}, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if err != nil {
		return err
	}
	if sub := auth.SubjectFromContext(ctx); sub != "" {
		r.Record(ctx, &Entry{
			UserID:       sub,
			UserRole:     auth.RoleFromContext(ctx),
			Action:       action,
			ResourceType: resourceType,
			Input:        input,
			Success:      true,
			DurationMS:   time.Since(start).Milliseconds(),
		})
	}
	return nil
}

func (r *Recorder) insert(ctx context.Context, entry *Entry) error {
	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return fmt.Errorf("marshal sanitized input: %w", err)
	}

	const query = `
		INSERT INTO audit_log (
			user_id, user_role, action, resource_type, resource_id,
			input, success, error, duration_ms, policy_version,
			ip_address, user_agent, request_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id`

	args := []any{
		entry.UserID, entry.UserRole, entry.Action, entry.ResourceType, entry.ResourceID,
		inputJSON, entry.Success, entry.Error, entry.DurationMS, entry.PolicyVersion,
		entry.IPAddress, entry.UserAgent, entry.RequestID, entry.CreatedAt,
	}

	if conn := db.ConnFromContext(ctx); conn != nil {
		return conn.QueryRow(ctx, query, args...).Scan(&entry.ID)
	}

	poolConn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer poolConn.Release()

	return poolConn.QueryRow(ctx, query, args...).Scan(&entry.ID)
}

// List returns audit entries matching the filter, newest first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, user_id, user_role, action, resource_type, resource_id,
		       input, success, error, duration_ms, policy_version,
		       ip_address, user_agent, request_id, created_at
		FROM audit_log WHERE 1=1`

	var args []any
	idx := 1
	add := func(clause string, val any) {
		query += fmt.Sprintf(" AND %s $%d", clause, idx)
		args = append(args, val)
		idx++
	}

	if f.UserID != "" {
		add("user_id =", f.UserID)
	}
	if f.Action != "" {
		add("action =", f.Action)
	}
	if f.ResourceType != "" {
		add("resource_type =", f.ResourceType)
	}
	if f.Since != nil {
		add("created_at >=", *f.Since)
	}
	if f.Until != nil {
		add("created_at <=", *f.Until)
	}

	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	poolConn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer poolConn.Release()

	rows, err := poolConn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var inputJSON []byte
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.UserRole, &e.Action, &e.ResourceType, &e.ResourceID,
			&inputJSON, &e.Success, &e.Error, &e.DurationMS, &e.PolicyVersion,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if len(inputJSON) > 0 {
			if err := json.Unmarshal(inputJSON, &e.Input); err != nil {
				return nil, fmt.Errorf("audit: unmarshal input: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}

	return entries, nil
}
