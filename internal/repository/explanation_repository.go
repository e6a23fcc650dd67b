package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"why-did-it-move/internal/domain"
)

const createExplanationsTable = `
CREATE TABLE IF NOT EXISTS explanations (
    symbol              TEXT             NOT NULL,
    move_date           DATE             NOT NULL,
    price_change_pct    DOUBLE PRECISION NOT NULL,
    significant         BOOLEAN          NOT NULL,
    explanation         TEXT             NOT NULL,
    primary_driver      TEXT             NOT NULL,
    supporting_factors  TEXT[]           NOT NULL DEFAULT '{}',
    move_classification TEXT             NOT NULL,
    confidence          DOUBLE PRECISION NOT NULL,
    uncertainty_note    TEXT             NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ      NOT NULL DEFAULT now(),
    PRIMARY KEY (symbol, move_date)
);

CREATE INDEX IF NOT EXISTS idx_explanations_symbol_date
    ON explanations (symbol, move_date DESC);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ExplanationRepository stores finished explanations keyed by (symbol, date).
// Re-running a request for the same day overwrites the previous row.
type ExplanationRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewExplanationRepository(pool PgxPool, tracer trace.Tracer) *ExplanationRepository {
	return &ExplanationRepository{pool: pool, tracer: tracer}
}

func (r *ExplanationRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "explanation-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createExplanationsTable)
	return err
}

func (r *ExplanationRepository) Insert(ctx context.Context, e *domain.Explanation) error {
	_, span := r.tracer.Start(ctx, "explanation-repo.insert")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO explanations
		     (symbol, move_date, price_change_pct, significant, explanation,
		      primary_driver, supporting_factors, move_classification, confidence, uncertainty_note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (symbol, move_date) DO UPDATE SET
		     price_change_pct = EXCLUDED.price_change_pct,
		     significant = EXCLUDED.significant,
		     explanation = EXCLUDED.explanation,
		     primary_driver = EXCLUDED.primary_driver,
		     supporting_factors = EXCLUDED.supporting_factors,
		     move_classification = EXCLUDED.move_classification,
		     confidence = EXCLUDED.confidence,
		     uncertainty_note = EXCLUDED.uncertainty_note`,
		e.Symbol, e.Date, e.PriceChangePercent, e.Significant, e.Explanation,
		e.PrimaryDriver, e.SupportingFactors, string(e.MoveClassification),
		e.ConfidenceScore, e.UncertaintyNote,
	)
	return err
}

func (r *ExplanationRepository) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error) {
	_, span := r.tracer.Start(ctx, "explanation-repo.list-by-symbol")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, to_char(move_date, 'YYYY-MM-DD'), price_change_pct, significant,
		        explanation, primary_driver, supporting_factors, move_classification,
		        confidence, uncertainty_note
		 FROM explanations
		 WHERE symbol = $1
		 ORDER BY move_date DESC
		 LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExplanations(rows)
}

func (r *ExplanationRepository) GetBySymbolDate(ctx context.Context, symbol, date string) (*domain.Explanation, error) {
	_, span := r.tracer.Start(ctx, "explanation-repo.get-by-symbol-date")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, to_char(move_date, 'YYYY-MM-DD'), price_change_pct, significant,
		        explanation, primary_driver, supporting_factors, move_classification,
		        confidence, uncertainty_note
		 FROM explanations
		 WHERE symbol = $1 AND move_date = $2`,
		symbol, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := scanExplanations(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func scanExplanations(rows pgx.Rows) ([]domain.Explanation, error) {
	var list []domain.Explanation
	for rows.Next() {
		var e domain.Explanation
		var classification string
		if err := rows.Scan(&e.Symbol, &e.Date, &e.PriceChangePercent, &e.Significant,
			&e.Explanation, &e.PrimaryDriver, &e.SupportingFactors, &classification,
			&e.ConfidenceScore, &e.UncertaintyNote); err != nil {
			return nil, err
		}
		e.MoveClassification = domain.MoveClassification(classification)
		list = append(list, e)
	}
	return list, rows.Err()
}
