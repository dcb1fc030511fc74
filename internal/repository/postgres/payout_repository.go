package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var payoutSortColumns = map[string]string{
	"created_at":   "p.created_at",
	"requested_at": "p.requested_at",
	"updated_at":   "p.updated_at",
	"amount":       "p.amount",
	"status":       "p.status",
}

// Commission ids come from the reservation index in their original order.
const payoutColumns = `p.id, p.seller_id, p.amount::text, p.currency_code,
	ARRAY(SELECT pc.commission_id FROM payout_commissions pc WHERE pc.payout_id = p.id ORDER BY pc.position),
	p.status, p.payment_method, p.payment_reference, p.payment_metadata,
	p.requested_at, p.reviewed_at, p.approved_at, p.processing_at, p.completed_at, p.failed_at, p.cancelled_at,
	p.reviewed_by, p.admin_notes, p.failure_reason, p.retry_count, p.max_retries,
	p.reconciliation_required, p.metadata, p.created_at, p.updated_at`

// PayoutRepository implements payout.Repository using PostgreSQL. The
// partial unique index on payout_commissions(commission_id) WHERE active
// guarantees a commission is held by at most one live payout.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

func (r *PayoutRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts the payout and its reservation rows. Callers run it in a
// transaction so a reservation conflict leaves nothing behind.
func (r *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	paymentMetadata, metadata, err := marshalPayoutMaps(p)
	if err != nil {
		return err
	}

	db := r.db(ctx)
	_, err = db.Exec(ctx,
		`INSERT INTO payouts
		 (id, seller_id, amount, currency_code, status, payment_method, payment_reference, payment_metadata,
		  requested_at, reviewed_at, approved_at, processing_at, completed_at, failed_at, cancelled_at,
		  reviewed_by, admin_notes, failure_reason, retry_count, max_retries, reconciliation_required,
		  metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		p.ID, p.SellerID, centsToNumericString(p.Amount), p.CurrencyCode, string(p.Status),
		string(p.PaymentMethod), p.PaymentReference, paymentMetadata,
		p.RequestedAt, p.ReviewedAt, p.ApprovedAt, p.ProcessingAt, p.CompletedAt, p.FailedAt, p.CancelledAt,
		p.ReviewedBy, p.AdminNotes, p.FailureReason, p.RetryCount, p.MaxRetries, p.ReconciliationRequired,
		metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}

	_, err = db.Exec(ctx,
		`INSERT INTO payout_commissions (payout_id, commission_id, position, active)
		 SELECT $1, c.id, c.ord, $3
		 FROM unnest($2::uuid[]) WITH ORDINALITY AS c(id, ord)`,
		p.ID, p.CommissionIDs, p.HoldsReservation(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrCommissionReserved
		}
		return fmt.Errorf("reserve commissions: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return r.scanPayout(r.db(ctx).QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts p WHERE p.id = $1`, id))
}

func (r *PayoutRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return r.scanPayout(r.db(ctx).QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts p WHERE p.id = $1 FOR UPDATE OF p`, id))
}

// Update persists the payout. Once the payout is terminal its reservation
// rows are deactivated so the commissions can be requested again.
func (r *PayoutRepository) Update(ctx context.Context, p *payout.Payout) error {
	paymentMetadata, metadata, err := marshalPayoutMaps(p)
	if err != nil {
		return err
	}

	db := r.db(ctx)
	tag, err := db.Exec(ctx,
		`UPDATE payouts SET
		  status=$1, payment_method=$2, payment_reference=$3, payment_metadata=$4,
		  reviewed_at=$5, approved_at=$6, processing_at=$7, completed_at=$8, failed_at=$9, cancelled_at=$10,
		  reviewed_by=$11, admin_notes=$12, failure_reason=$13, retry_count=$14,
		  reconciliation_required=$15, metadata=$16, updated_at=$17
		 WHERE id=$18`,
		string(p.Status), string(p.PaymentMethod), p.PaymentReference, paymentMetadata,
		p.ReviewedAt, p.ApprovedAt, p.ProcessingAt, p.CompletedAt, p.FailedAt, p.CancelledAt,
		p.ReviewedBy, p.AdminNotes, p.FailureReason, p.RetryCount,
		p.ReconciliationRequired, metadata, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPayoutNotFound
	}

	if !p.HoldsReservation() {
		if _, err := db.Exec(ctx,
			`UPDATE payout_commissions SET active = FALSE WHERE payout_id = $1 AND active`, p.ID,
		); err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
	}
	return nil
}

func (r *PayoutRepository) List(ctx context.Context, f payout.ListFilter) ([]*payout.Payout, error) {
	where, args := payoutWhere(f)

	sortBy := "p.created_at"
	if col, ok := payoutSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	query := `SELECT ` + payoutColumns + ` FROM payouts p` + where +
		fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return r.collect(rows)
}

func (r *PayoutRepository) Count(ctx context.Context, f payout.ListFilter) (int, error) {
	where, args := payoutWhere(f)
	var n int
	if err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payouts p`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payouts: %w", err)
	}
	return n, nil
}

func (r *PayoutRepository) FindReservations(ctx context.Context, commissionIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	result := make(map[uuid.UUID]uuid.UUID)
	if len(commissionIDs) == 0 {
		return result, nil
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT commission_id, payout_id FROM payout_commissions
		 WHERE active AND commission_id = ANY($1)`, commissionIDs)
	if err != nil {
		return nil, fmt.Errorf("find reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var commissionID, payoutID uuid.UUID
		if err := rows.Scan(&commissionID, &payoutID); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		result[commissionID] = payoutID
	}
	return result, rows.Err()
}

func (r *PayoutRepository) ReservedCommissionIDs(ctx context.Context, sellerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT pc.commission_id FROM payout_commissions pc
		 JOIN payouts p ON p.id = pc.payout_id
		 WHERE pc.active AND p.seller_id = $1`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reserved commissions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reserved commission: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PayoutRepository) History(ctx context.Context, sellerID uuid.UUID) (*payout.SellerHistory, error) {
	h := &payout.SellerHistory{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT MAX(requested_at) FILTER (WHERE status <> 'cancelled'),
		        COUNT(*) FILTER (WHERE status = 'failed')
		 FROM payouts WHERE seller_id = $1`, sellerID,
	).Scan(&h.LastRequestedAt, &h.FailedCount)
	if err != nil {
		return nil, fmt.Errorf("payout history: %w", err)
	}
	return h, nil
}

func (r *PayoutRepository) ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts p
		 WHERE p.status = 'processing' AND p.processing_at < $1
		 ORDER BY p.processing_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list processing payouts: %w", err)
	}
	return r.collect(rows)
}

func (r *PayoutRepository) Totals(ctx context.Context, sellerID *uuid.UUID) ([]payout.StatusTotals, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(amount), 0)::text FROM payouts`
	var args []any
	if sellerID != nil {
		query += " WHERE seller_id = $1"
		args = append(args, *sellerID)
	}
	query += " GROUP BY status"

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payout totals: %w", err)
	}
	defer rows.Close()

	var totals []payout.StatusTotals
	for rows.Next() {
		var (
			t      payout.StatusTotals
			status string
			amount string
		)
		if err := rows.Scan(&status, &t.Count, &amount); err != nil {
			return nil, fmt.Errorf("scan payout totals: %w", err)
		}
		t.Status = payout.Status(status)
		if t.Amount, err = numericStringToCents(amount); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func payoutWhere(f payout.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.SellerID != nil {
		args = append(args, *f.SellerID)
		conds = append(conds, fmt.Sprintf("p.seller_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if f.ReconciliationRequired != nil {
		args = append(args, *f.ReconciliationRequired)
		conds = append(conds, fmt.Sprintf("p.reconciliation_required = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func marshalPayoutMaps(p *payout.Payout) (paymentMetadata, metadata []byte, err error) {
	if paymentMetadata, err = json.Marshal(p.PaymentMetadata); err != nil {
		return nil, nil, fmt.Errorf("marshal payment metadata: %w", err)
	}
	if metadata, err = json.Marshal(p.Metadata); err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return paymentMetadata, metadata, nil
}

func (r *PayoutRepository) collect(rows pgx.Rows) ([]*payout.Payout, error) {
	defer rows.Close()
	var result []*payout.Payout
	for rows.Next() {
		p, err := r.scanPayout(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PayoutRepository) scanPayout(row scanner) (*payout.Payout, error) {
	p := &payout.Payout{}
	var (
		amount, status, method    string
		paymentMetadata, metadata []byte
	)
	err := row.Scan(
		&p.ID, &p.SellerID, &amount, &p.CurrencyCode, &p.CommissionIDs,
		&status, &method, &p.PaymentReference, &paymentMetadata,
		&p.RequestedAt, &p.ReviewedAt, &p.ApprovedAt, &p.ProcessingAt, &p.CompletedAt, &p.FailedAt, &p.CancelledAt,
		&p.ReviewedBy, &p.AdminNotes, &p.FailureReason, &p.RetryCount, &p.MaxRetries,
		&p.ReconciliationRequired, &metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("scan payout: %w", err)
	}

	p.Status = payout.Status(status)
	p.PaymentMethod = payout.Method(method)
	if p.Amount, err = numericStringToCents(amount); err != nil {
		return nil, err
	}
	if len(paymentMetadata) > 0 {
		if err := json.Unmarshal(paymentMetadata, &p.PaymentMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal payment metadata: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return p, nil
}
