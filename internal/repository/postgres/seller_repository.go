package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sellerColumns = `id, customer_id, business_name, email, phone, tax_id, verification_status,
	is_active, commission_rate::text, payout_method, rating, suspension_count, chargeback_count,
	notes, metadata, verified_at, created_at, updated_at`

// SellerRepository implements seller.Repository using PostgreSQL.
type SellerRepository struct {
	pool *pgxpool.Pool
}

func NewSellerRepository(pool *pgxpool.Pool) *SellerRepository {
	return &SellerRepository{pool: pool}
}

func (r *SellerRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *SellerRepository) Create(ctx context.Context, s *seller.Seller) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO sellers
		 (id, customer_id, business_name, email, phone, tax_id, verification_status, is_active,
		  commission_rate, payout_method, rating, suspension_count, chargeback_count, notes, metadata,
		  verified_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		s.ID, s.CustomerID, s.BusinessName, s.Email, s.Phone, s.TaxID, string(s.VerificationStatus), s.IsActive,
		optionalRateString(s.CommissionRate), string(s.PayoutMethod), s.Rating, s.SuspensionCount, s.ChargebackCount,
		s.Notes, metadata, s.VerifiedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrSellerAlreadyRegistered
		}
		return fmt.Errorf("insert seller: %w", err)
	}
	return nil
}

func (r *SellerRepository) GetByID(ctx context.Context, id uuid.UUID) (*seller.Seller, error) {
	return r.scanSeller(r.db(ctx).QueryRow(ctx,
		`SELECT `+sellerColumns+` FROM sellers WHERE id = $1`, id))
}

func (r *SellerRepository) GetByCustomerID(ctx context.Context, customerID string) (*seller.Seller, error) {
	return r.scanSeller(r.db(ctx).QueryRow(ctx,
		`SELECT `+sellerColumns+` FROM sellers WHERE customer_id = $1`, customerID))
}

func (r *SellerRepository) Update(ctx context.Context, s *seller.Seller) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE sellers SET
		  business_name=$1, email=$2, phone=$3, tax_id=$4, verification_status=$5, is_active=$6,
		  commission_rate=$7, payout_method=$8, rating=$9, suspension_count=$10, chargeback_count=$11,
		  notes=$12, metadata=$13, verified_at=$14, updated_at=$15
		 WHERE id=$16`,
		s.BusinessName, s.Email, s.Phone, s.TaxID, string(s.VerificationStatus), s.IsActive,
		optionalRateString(s.CommissionRate), string(s.PayoutMethod), s.Rating, s.SuspensionCount, s.ChargebackCount,
		s.Notes, metadata, s.VerifiedAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update seller: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSellerNotFound
	}
	return nil
}

func (r *SellerRepository) List(ctx context.Context, f seller.ListFilter) ([]*seller.Seller, error) {
	where, args := sellerWhere(f)
	query := `SELECT ` + sellerColumns + ` FROM sellers` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	defer rows.Close()

	var sellers []*seller.Seller
	for rows.Next() {
		s, err := r.scanSeller(rows)
		if err != nil {
			return nil, err
		}
		sellers = append(sellers, s)
	}
	return sellers, rows.Err()
}

func (r *SellerRepository) Count(ctx context.Context, f seller.ListFilter) (int, error) {
	where, args := sellerWhere(f)
	var n int
	if err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM sellers`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sellers: %w", err)
	}
	return n, nil
}

func sellerWhere(f seller.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.VerificationStatus != nil {
		args = append(args, string(*f.VerificationStatus))
		conds = append(conds, fmt.Sprintf("verification_status = $%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SellerRepository) scanSeller(row scanner) (*seller.Seller, error) {
	s := &seller.Seller{}
	var (
		status, method string
		rate           *string
		metadata       []byte
	)
	err := row.Scan(
		&s.ID, &s.CustomerID, &s.BusinessName, &s.Email, &s.Phone, &s.TaxID, &status,
		&s.IsActive, &rate, &method, &s.Rating, &s.SuspensionCount, &s.ChargebackCount,
		&s.Notes, &metadata, &s.VerifiedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSellerNotFound
		}
		return nil, fmt.Errorf("scan seller: %w", err)
	}

	s.VerificationStatus = seller.VerificationStatus(status)
	s.PayoutMethod = payout.Method(method)
	if s.CommissionRate, err = parseOptionalRate(rate); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return s, nil
}
