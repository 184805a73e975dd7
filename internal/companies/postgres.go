package companies

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"finsight/internal/domain"
)

// PostgresDirectory backs the company directory with a companies table
// searched through pg_trgm similarity and unaccent normalization.
type PostgresDirectory struct {
	db        *sqlx.DB
	threshold float64
}

func NewPostgresDirectory(db *sqlx.DB, threshold float64) *PostgresDirectory {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &PostgresDirectory{db: db, threshold: threshold}
}

// EnsureSchema creates the extensions, table and trigram indexes if
// they do not exist.
func (d *PostgresDirectory) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE EXTENSION IF NOT EXISTS unaccent`,
		`CREATE TABLE IF NOT EXISTS companies (
			company_name TEXT NOT NULL,
			nse_symbol TEXT,
			bse_symbol TEXT,
			bse_code TEXT,
			isin TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_companies_name_trgm
			ON companies USING gin (lower(company_name) gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_companies_nse_trgm
			ON companies USING gin (lower(coalesce(nse_symbol, '')) gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_companies_bse_trgm
			ON companies USING gin (lower(coalesce(bse_symbol, '')) gin_trgm_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return directoryErr("ensure schema", err)
		}
	}
	return nil
}

const searchQuery = `
SELECT company_name,
       COALESCE(nse_symbol, '') AS nse_symbol,
       COALESCE(bse_symbol, '') AS bse_symbol,
       COALESCE(bse_code, '') AS bse_code,
       COALESCE(isin, '') AS isin,
       CASE
           WHEN bse_code = $1 OR isin = $1 THEN 0
           WHEN GREATEST(
               similarity(unaccent(lower(company_name)), unaccent(lower($1))),
               similarity(unaccent(lower(COALESCE(nse_symbol, ''))), unaccent(lower($1))),
               similarity(unaccent(lower(COALESCE(bse_symbol, ''))), unaccent(lower($1)))
           ) >= $2 THEN 1
           ELSE 2
       END AS tier,
       CASE
           WHEN bse_code = $1 OR isin = $1 THEN 1.0
           ELSE GREATEST(
               similarity(unaccent(lower(company_name)), unaccent(lower($1))),
               similarity(unaccent(lower(COALESCE(nse_symbol, ''))), unaccent(lower($1))),
               similarity(unaccent(lower(COALESCE(bse_symbol, ''))), unaccent(lower($1)))
           )
       END AS score
FROM companies
WHERE bse_code = $1
   OR isin = $1
   OR GREATEST(
          similarity(unaccent(lower(company_name)), unaccent(lower($1))),
          similarity(unaccent(lower(COALESCE(nse_symbol, ''))), unaccent(lower($1))),
          similarity(unaccent(lower(COALESCE(bse_symbol, ''))), unaccent(lower($1)))
      ) >= $2
   OR unaccent(lower(company_name)) LIKE '%' || unaccent(lower($1)) || '%'
   OR unaccent(lower(COALESCE(nse_symbol, ''))) LIKE '%' || unaccent(lower($1)) || '%'
   OR unaccent(lower(COALESCE(bse_symbol, ''))) LIKE '%' || unaccent(lower($1)) || '%'
ORDER BY tier ASC, score DESC, company_name ASC
LIMIT $3`

// Search implements the matching policy in SQL: exact bse_code/isin
// first, trigram similarity above the threshold second, substring
// containment last, with company name as the final tie-break.
func (d *PostgresDirectory) Search(ctx context.Context, query string, limit int) ([]domain.CompanyMatch, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := d.db.QueryxContext(ctx, searchQuery, query, d.threshold, limit)
	if err != nil {
		return nil, directoryErr("search companies", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []domain.CompanyMatch
	for rows.Next() {
		var (
			rec   domain.CompanyRecord
			tier  int
			score float64
		)
		if err := rows.Scan(&rec.CompanyName, &rec.NSESymbol, &rec.BSESymbol, &rec.BSECode, &rec.ISIN, &tier, &score); err != nil {
			return nil, directoryErr("scan company row", err)
		}
		matches = append(matches, domain.CompanyMatch{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, directoryErr("read company rows", err)
	}
	return matches, nil
}

// ReplaceAll overwrites the companies table from a feed refresh in one
// transaction.
func (d *PostgresDirectory) ReplaceAll(ctx context.Context, records []domain.CompanyRecord) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return directoryErr("begin replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `TRUNCATE companies`); err != nil {
		return directoryErr("truncate companies", err)
	}
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO companies (company_name, nse_symbol, bse_symbol, bse_code, isin)
			 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))`,
			rec.CompanyName, rec.NSESymbol, rec.BSESymbol, rec.BSECode, rec.ISIN); err != nil {
			return directoryErr("insert company", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return directoryErr("commit replace", err)
	}
	return nil
}

func directoryErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
