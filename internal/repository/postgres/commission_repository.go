package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// commissionSortColumns is a whitelist of columns valid for ORDER BY.
var commissionSortColumns = map[string]string{
	"created_at":        "created_at",
	"updated_at":        "updated_at",
	"line_item_total":   "line_item_total",
	"commission_amount": "commission_amount",
	"status":            "status",
}

const commissionColumns = `id, order_id, line_item_id, seller_id, product_id, product_title, variant_id,
	line_item_total::text, quantity, commission_rate::text, commission_amount::text, seller_payout::text,
	currency_code, status, notes, metadata, approved_at, paid_at, disputed_at, cancelled_at,
	created_at, updated_at, deleted_at`

// CommissionRepository implements commission.Repository using PostgreSQL.
type CommissionRepository struct {
	pool *pgxpool.Pool
}

func NewCommissionRepository(pool *pgxpool.Pool) *CommissionRepository {
	return &CommissionRepository{pool: pool}
}

func (r *CommissionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *CommissionRepository) Create(ctx context.Context, c *commission.Commission) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO commissions
		 (id, order_id, line_item_id, seller_id, product_id, product_title, variant_id,
		  line_item_total, quantity, commission_rate, commission_amount, seller_payout,
		  currency_code, status, notes, metadata, approved_at, paid_at, disputed_at, cancelled_at,
		  created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		c.ID, c.OrderID, c.LineItemID, c.SellerID, c.ProductID, c.ProductTitle, c.VariantID,
		centsToNumericString(c.LineItemTotal), c.Quantity, rateString(c.CommissionRate),
		centsToNumericString(c.CommissionAmount), centsToNumericString(c.SellerPayout),
		c.CurrencyCode, string(c.Status), c.Notes, metadata,
		c.ApprovedAt, c.PaidAt, c.DisputedAt, c.CancelledAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrDuplicateCommission
		}
		return fmt.Errorf("insert commission: %w", err)
	}
	return nil
}

func (r *CommissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	return r.scanCommission(r.db(ctx).QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *CommissionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	return r.scanCommission(r.db(ctx).QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
}

func (r *CommissionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+commissionColumns+` FROM commissions
		 WHERE id = ANY($1) AND deleted_at IS NULL
		 ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get commissions by ids: %w", err)
	}
	return r.collect(rows)
}

func (r *CommissionRepository) GetManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+commissionColumns+` FROM commissions
		 WHERE id = ANY($1) AND deleted_at IS NULL
		 ORDER BY id
		 FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock commissions %v: %w", ids, err)
	}
	return r.collect(rows)
}

func (r *CommissionRepository) Update(ctx context.Context, c *commission.Commission) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE commissions SET
		  status=$1, notes=$2, metadata=$3, approved_at=$4, paid_at=$5,
		  disputed_at=$6, cancelled_at=$7, updated_at=$8
		 WHERE id=$9 AND deleted_at IS NULL`,
		string(c.Status), c.Notes, metadata, c.ApprovedAt, c.PaidAt,
		c.DisputedAt, c.CancelledAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update commission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrCommissionNotFound
	}
	return nil
}

func (r *CommissionRepository) List(ctx context.Context, f commission.ListFilter) ([]*commission.Commission, error) {
	where, args := commissionWhere(f)

	sortBy := "created_at"
	if col, ok := commissionSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	query := `SELECT ` + commissionColumns + ` FROM commissions` + where +
		fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	return r.collect(rows)
}

func (r *CommissionRepository) Count(ctx context.Context, f commission.ListFilter) (int, error) {
	where, args := commissionWhere(f)
	var n int
	if err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM commissions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commissions: %w", err)
	}
	return n, nil
}

func (r *CommissionRepository) ListByOrder(ctx context.Context, orderID string) ([]*commission.Commission, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+commissionColumns+` FROM commissions
		 WHERE order_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list commissions by order: %w", err)
	}
	return r.collect(rows)
}

func (r *CommissionRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*commission.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions
		 WHERE status = 'pending' AND created_at < $1 AND deleted_at IS NULL
		 ORDER BY created_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending commissions: %w", err)
	}
	return r.collect(rows)
}

func (r *CommissionRepository) Totals(ctx context.Context, sellerID *uuid.UUID) ([]commission.StatusTotals, error) {
	query := `SELECT status, COUNT(*),
		        COALESCE(SUM(line_item_total), 0)::text,
		        COALESCE(SUM(commission_amount), 0)::text,
		        COALESCE(SUM(seller_payout), 0)::text
		 FROM commissions WHERE deleted_at IS NULL`
	var args []any
	if sellerID != nil {
		query += " AND seller_id = $1"
		args = append(args, *sellerID)
	}
	query += " GROUP BY status"

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("commission totals: %w", err)
	}
	defer rows.Close()

	var totals []commission.StatusTotals
	for rows.Next() {
		var (
			t                        commission.StatusTotals
			status                   string
			lineItem, comm, sellerPy string
		)
		if err := rows.Scan(&status, &t.Count, &lineItem, &comm, &sellerPy); err != nil {
			return nil, fmt.Errorf("scan commission totals: %w", err)
		}
		t.Status = commission.Status(status)
		if t.LineItemTotal, err = numericStringToCents(lineItem); err != nil {
			return nil, err
		}
		if t.CommissionAmount, err = numericStringToCents(comm); err != nil {
			return nil, err
		}
		if t.SellerPayout, err = numericStringToCents(sellerPy); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func commissionWhere(f commission.ListFilter) (string, []any) {
	clause := " WHERE deleted_at IS NULL"
	var args []any
	if f.SellerID != nil {
		args = append(args, *f.SellerID)
		clause += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if f.OrderID != nil {
		args = append(args, *f.OrderID)
		clause += fmt.Sprintf(" AND order_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		clause += fmt.Sprintf(" AND status = $%d", len(args))
	}
	return clause, args
}

func (r *CommissionRepository) collect(rows pgx.Rows) ([]*commission.Commission, error) {
	defer rows.Close()
	var result []*commission.Commission
	for rows.Next() {
		c, err := r.scanCommission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *CommissionRepository) scanCommission(row scanner) (*commission.Commission, error) {
	c := &commission.Commission{}
	var (
		lineItem, rate, amount, sellerPayout string
		status                               string
		metadata                             []byte
	)
	err := row.Scan(
		&c.ID, &c.OrderID, &c.LineItemID, &c.SellerID, &c.ProductID, &c.ProductTitle, &c.VariantID,
		&lineItem, &c.Quantity, &rate, &amount, &sellerPayout,
		&c.CurrencyCode, &status, &c.Notes, &metadata,
		&c.ApprovedAt, &c.PaidAt, &c.DisputedAt, &c.CancelledAt,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCommissionNotFound
		}
		return nil, fmt.Errorf("scan commission: %w", err)
	}

	c.Status = commission.Status(status)
	if c.LineItemTotal, err = numericStringToCents(lineItem); err != nil {
		return nil, err
	}
	if c.CommissionAmount, err = numericStringToCents(amount); err != nil {
		return nil, err
	}
	if c.SellerPayout, err = numericStringToCents(sellerPayout); err != nil {
		return nil, err
	}
	if c.CommissionRate, err = parseRate(rate); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return c, nil
}
