package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository is the append-only audit log. It implements audit.Repository.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record always writes through the pool, never the caller's transaction,
// so a rolled-back business operation still leaves its audit trail.
func (r *AuditRepository) Record(ctx context.Context, e *audit.Event) error {
	before, err := marshalState(e.Before)
	if err != nil {
		return err
	}
	after, err := marshalState(e.After)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_events
		 (id, actor_id, actor_role, seller_id, customer_id, entity_type, entity_id, action,
		  before_state, after_state, outcome, description, error_message, ip_address, user_agent, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.ActorID, e.ActorRole, e.SellerID, e.CustomerID, e.EntityType, e.EntityID, e.Action,
		before, after, string(e.Outcome), e.Description, e.ErrorMessage, e.IPAddress, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, actor_role, seller_id, customer_id, entity_type, entity_id, action,
		        before_state, after_state, outcome, description, error_message, ip_address, user_agent, created_at
		 FROM audit_events
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`, entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		e := &audit.Event{}
		var (
			before, after       []byte
			outcome             string
			description, ip, ua *string
		)
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorRole, &e.SellerID, &e.CustomerID, &e.EntityType, &e.EntityID, &e.Action,
			&before, &after, &outcome, &description, &e.ErrorMessage, &ip, &ua, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Outcome = audit.Outcome(outcome)
		e.Description = deref(description)
		e.IPAddress = deref(ip)
		e.UserAgent = deref(ua)
		if len(before) > 0 {
			if err := json.Unmarshal(before, &e.Before); err != nil {
				return nil, fmt.Errorf("unmarshal before state: %w", err)
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &e.After); err != nil {
				return nil, fmt.Errorf("unmarshal after state: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func marshalState(state map[string]any) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal audit state: %w", err)
	}
	return raw, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
