package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ewhitmore/forexbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Each detection is one row; the per-leg breakdown is stored as JSONB.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, base_currency, cycle, steps,
	start_amount, end_amount, detected_at`

// Insert stores a detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunity_history (
			id, base_currency, cycle, steps,
			start_amount, end_amount, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	steps, err := json.Marshal(opp.Steps)
	if err != nil {
		return fmt.Errorf("postgres: marshal steps for %s: %w", opp.ID, err)
	}

	cycle := make([]string, len(opp.Cycle))
	for i, c := range opp.Cycle {
		cycle[i] = string(c)
	}

	if _, err := s.pool.Exec(ctx, query,
		opp.ID, string(opp.Base), cycle, steps,
		opp.StartAmount, opp.EndAmount, opp.DetectedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recent opportunities ordered by detection time,
// newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunity_history ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// ListBefore returns opportunities detected strictly before cutoff, oldest
// first, up to limit rows. The archiver drains aged rows through it.
func (s *OpportunityStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + `
		FROM opportunity_history
		WHERE detected_at < $1
		ORDER BY detected_at ASC`
	args := []any{cutoff}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// DeleteBefore removes opportunities detected strictly before cutoff and
// returns the number of rows deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunity_history WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner is the subset of pgx.Rows the scan helper needs.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOpportunities(rows rowScanner) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var (
			opp   domain.Opportunity
			base  string
			cycle []string
			steps []byte
		)
		if err := rows.Scan(
			&opp.ID, &base, &cycle, &steps,
			&opp.StartAmount, &opp.EndAmount, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}

		opp.Base = domain.Currency(base)
		opp.Cycle = make([]domain.Currency, len(cycle))
		for i, c := range cycle {
			opp.Cycle[i] = domain.Currency(c)
		}
		if err := json.Unmarshal(steps, &opp.Steps); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal steps for %s: %w", opp.ID, err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
