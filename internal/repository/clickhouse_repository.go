package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	applogger "AgriCast/pkg/logger"
)

// ClickHouseRepository reads denormalized market prices from ClickHouse.
type ClickHouseRepository struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

// NewClickHouseRepository creates the repository on a ClickHouse connection pool.
func NewClickHouseRepository(db *sql.DB, database string) *ClickHouseRepository {
	if database == "" {
		database = "agricast"
	}
	return &ClickHouseRepository{db: db, database: database}
}

// SetLogger injects a structured logger.
func (s *ClickHouseRepository) SetLogger(l *applogger.Logger) { s.l = l }

// ClickHouseSchema returns idempotent DDL for the tables the repository uses.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.products (
			name String,
			category String
		) ENGINE = ReplacingMergeTree ORDER BY name`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_prices (
			product LowCardinality(String),
			city LowCardinality(String),
			date Date,
			price Float64,
			inserted_at DateTime DEFAULT now()
		) ENGINE = MergeTree ORDER BY (product, city, date)`, database),
	}
}

func (s *ClickHouseRepository) FetchSeries(ctx context.Context, product, city string) ([]models.Observation, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, price
        FROM %s.market_prices
        WHERE product = ? AND city = ?
        ORDER BY date ASC
    `, s.database)
	rows, err := s.db.QueryContext(ctx, q, product, city)
	if err != nil {
		s.logError("clickhouse fetch_series query error", err, product, city)
		return nil, models.UpstreamFetchError(err, "fetch %s in %s", product, city)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 256)
	for rows.Next() {
		o := models.Observation{Product: product, City: city}
		if err := rows.Scan(&o.Date, &o.Price); err != nil {
			s.logError("clickhouse fetch_series scan error", err, product, city)
			return nil, models.UpstreamFetchError(err, "scan %s in %s", product, city)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse fetch_series rows error", err, product, city)
		return nil, models.UpstreamFetchError(err, "fetch %s in %s", product, city)
	}

	if len(out) == 0 {
		return nil, s.emptySeriesError(ctx, product, city)
	}
	if s.l != nil {
		s.l.Debug("clickhouse fetch_series ok",
			applogger.String("product", product),
			applogger.String("city", city),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// emptySeriesError tells an unknown product apart from a product with no prices in city.
func (s *ClickHouseRepository) emptySeriesError(ctx context.Context, product, city string) error {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s.products WHERE name = ?", s.database)
	if err := s.db.QueryRowContext(ctx, q, product).Scan(&n); err == nil && n == 0 {
		return models.NotFoundError("product %s not found", product)
	}
	return models.NotFoundError("no data for %s in %s", product, city)
}

func (s *ClickHouseRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	q := fmt.Sprintf("SELECT name, any(category) FROM %s.products GROUP BY name ORDER BY name", s.database)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, models.UpstreamFetchError(err, "list products")
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.Name, &p.Category); err != nil {
			return nil, models.UpstreamFetchError(err, "scan product")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, models.UpstreamFetchError(err, "list products")
	}
	return out, nil
}

// StoreObservations inserts prices with multi-row VALUES in chunks and registers new products.
func (s *ClickHouseRepository) StoreObservations(ctx context.Context, obs []models.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	const chunkSize = 2000
	for start := 0; start < len(obs); start += chunkSize {
		end := min(start+chunkSize, len(obs))
		q, args := insertValues(fmt.Sprintf("INSERT INTO %s.market_prices (product, city, date, price) VALUES ", s.database), obs[start:end],
			func(o models.Observation) []interface{} {
				return []interface{}{o.Product, o.City, o.Date, o.Price}
			})
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse store_observations error", applogger.Int("rows", end-start), applogger.Error(err))
			}
			return fmt.Errorf("store observations: %w", err)
		}
	}

	names := make([]models.Product, 0)
	seen := make(map[string]bool)
	for _, o := range obs {
		if !seen[o.Product] {
			seen[o.Product] = true
			names = append(names, models.Product{Name: o.Product})
		}
	}
	// ReplacingMergeTree collapses duplicate names
	q, args := insertValues(fmt.Sprintf("INSERT INTO %s.products (name, category) VALUES ", s.database), names,
		func(p models.Product) []interface{} { return []interface{}{p.Name, p.Category} })
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store products: %w", err)
	}
	return nil
}

func insertValues[T any](prefix string, items []T, cols func(T) []interface{}) (string, []interface{}) {
	values := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*4)
	for _, it := range items {
		c := cols(it)
		values = append(values, "("+strings.TrimSuffix(strings.Repeat("?, ", len(c)), ", ")+")")
		args = append(args, c...)
	}
	return prefix + strings.Join(values, ","), args
}

func (s *ClickHouseRepository) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseRepository) logError(msg string, err error, product, city string) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", s.database+".market_prices"),
		applogger.String("product", product),
		applogger.String("city", city),
		applogger.Error(err),
	)
}

var (
	_ domrepo.SeriesSource      = (*ClickHouseRepository)(nil)
	_ domrepo.ProductCatalog    = (*ClickHouseRepository)(nil)
	_ domrepo.ObservationWriter = (*ClickHouseRepository)(nil)
)
