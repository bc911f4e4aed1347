package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	applogger "AgriCast/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxDB is the subset of *pgxpool.Pool the repository needs.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresRepository reads market prices and the product catalog from the
// products/market_prices tables and stores ingested prices and predictions.
type PostgresRepository struct {
	db               pgxDB
	predictionsTable string
	l                *applogger.Logger
}

// NewPostgresRepository creates the repository on a pgx pool.
func NewPostgresRepository(db pgxDB, predictionsTable string) *PostgresRepository {
	if predictionsTable == "" {
		predictionsTable = "price_predictions"
	}
	return &PostgresRepository{db: db, predictionsTable: predictionsTable}
}

// SetLogger injects a structured logger.
func (r *PostgresRepository) SetLogger(l *applogger.Logger) { r.l = l }

// PostgresSchema returns idempotent DDL for the tables the repository uses.
func PostgresSchema(predictionsTable string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS market_prices (
			id BIGSERIAL PRIMARY KEY,
			product_id INTEGER NOT NULL REFERENCES products(id),
			city TEXT NOT NULL,
			date DATE NOT NULL,
			price NUMERIC(12, 2) NOT NULL,
			UNIQUE (product_id, city, date)
		)`,
		`CREATE INDEX IF NOT EXISTS market_prices_product_city_date ON market_prices (product_id, city, date)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			product TEXT NOT NULL,
			city TEXT NOT NULL,
			predict_date DATE NOT NULL,
			predicted_price NUMERIC(12, 2) NOT NULL,
			model_version TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (product, city, predict_date, model_version)
		)`, pgx.Identifier{predictionsTable}.Sanitize()),
	}
}

// FetchSeries returns every observation of product in city ordered by date.
func (r *PostgresRepository) FetchSeries(ctx context.Context, product, city string) ([]models.Observation, error) {
	start := time.Now()

	var productID int
	err := r.db.QueryRow(ctx, `SELECT id FROM products WHERE name = $1`, product).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundError("product %s not found", product)
	}
	if err != nil {
		r.logError("postgres product lookup error", err, product, city)
		return nil, models.UpstreamFetchError(err, "lookup product %s", product)
	}

	rows, err := r.db.Query(ctx, `
		SELECT date, price::float8
		FROM market_prices
		WHERE product_id = $1 AND city = $2
		ORDER BY date ASC`, productID, city)
	if err != nil {
		r.logError("postgres fetch_series query error", err, product, city)
		return nil, models.UpstreamFetchError(err, "fetch %s in %s", product, city)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Observation, error) {
		o := models.Observation{Product: product, City: city}
		err := row.Scan(&o.Date, &o.Price)
		return o, err
	})
	if err != nil {
		r.logError("postgres fetch_series scan error", err, product, city)
		return nil, models.UpstreamFetchError(err, "fetch %s in %s", product, city)
	}
	if len(out) == 0 {
		return nil, models.NotFoundError("no data for %s in %s", product, city)
	}

	if r.l != nil {
		r.l.Debug("postgres fetch_series ok",
			applogger.String("product", product),
			applogger.String("city", city),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// ListProducts returns the catalog ordered by name.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT name, category FROM products ORDER BY name`)
	if err != nil {
		return nil, models.UpstreamFetchError(err, "list products")
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.Product])
	if err != nil {
		return nil, models.UpstreamFetchError(err, "list products")
	}
	return products, nil
}

// StoreObservations upserts products and prices in one batch; the latest price of a day wins.
func (r *PostgresRepository) StoreObservations(ctx context.Context, obs []models.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	seen := make(map[string]bool)
	for _, o := range obs {
		if !seen[o.Product] {
			seen[o.Product] = true
			batch.Queue(`INSERT INTO products (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, o.Product)
		}
		batch.Queue(`
			INSERT INTO market_prices (product_id, city, date, price)
			SELECT id, $2, $3, $4 FROM products WHERE name = $1
			ON CONFLICT (product_id, city, date) DO UPDATE SET price = EXCLUDED.price`,
			o.Product, o.City, o.Date, o.Price)
	}
	return r.execBatch(ctx, batch, "store observations")
}

// SavePredictions upserts forecast records into the predictions table.
func (r *PostgresRepository) SavePredictions(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (product, city, predict_date, predicted_price, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product, city, predict_date, model_version)
		DO UPDATE SET predicted_price = EXCLUDED.predicted_price, created_at = EXCLUDED.created_at`,
		pgx.Identifier{r.predictionsTable}.Sanitize())

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(q, rec.Product, rec.City, rec.Date, rec.Price, rec.ModelVersion, rec.GeneratedAt)
	}
	return r.execBatch(ctx, batch, "save predictions")
}

// Close is a no-op; the pool belongs to pkg/postgres.
func (r *PostgresRepository) Close() error { return nil }

func (r *PostgresRepository) execBatch(ctx context.Context, batch *pgx.Batch, op string) error {
	br := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if r.l != nil {
				r.l.Error("postgres batch error", applogger.String("op", op), applogger.Int("statement", i), applogger.Error(err))
			}
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepository) logError(msg string, err error, product, city string) {
	if r.l == nil {
		return
	}
	r.l.Error(msg,
		applogger.String("product", product),
		applogger.String("city", city),
		applogger.Error(err),
	)
}

var (
	_ domrepo.SeriesSource      = (*PostgresRepository)(nil)
	_ domrepo.ProductCatalog    = (*PostgresRepository)(nil)
	_ domrepo.ObservationWriter = (*PostgresRepository)(nil)
	_ domrepo.PredictionSink    = (*PostgresRepository)(nil)
)
