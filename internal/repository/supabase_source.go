package repository

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	xhttp "AgriCast/pkg/http"
	applogger "AgriCast/pkg/logger"
	"AgriCast/pkg/util"

	"github.com/shopspring/decimal"
)

// supabasePageSize matches the default PostgREST max-rows of a Supabase project.
const supabasePageSize = 1000

// SupabaseSource reads products and market prices through the Supabase REST (PostgREST) API.
type SupabaseSource struct {
	baseURL          string
	key              string
	predictionsTable string
	pageSize         int
	client           *xhttp.Client
	l                *applogger.Logger
}

// NewSupabaseSource builds a REST client for the project at baseURL.
func NewSupabaseSource(baseURL, key string, timeout time.Duration, predictionsTable string) *SupabaseSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if predictionsTable == "" {
		predictionsTable = "price_predictions"
	}
	return &SupabaseSource{
		baseURL:          strings.TrimRight(baseURL, "/") + "/rest/v1/",
		key:              key,
		predictionsTable: predictionsTable,
		pageSize:         supabasePageSize,
		client:           xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// SetLogger injects a structured logger.
func (s *SupabaseSource) SetLogger(l *applogger.Logger) { s.l = l }

type supabaseProductID struct {
	ID int64 `json:"id"`
}

type supabasePrice struct {
	Date  string          `json:"date"`
	Price decimal.Decimal `json:"price"`
}

func (s *SupabaseSource) FetchSeries(ctx context.Context, product, city string) ([]models.Observation, error) {
	start := time.Now()

	var ids []supabaseProductID
	err := s.get(ctx, "products", map[string][]string{
		"select": {"id"},
		"name":   {"eq." + product},
	}, &ids)
	if err != nil {
		s.logError("supabase product lookup error", err, product, city)
		return nil, models.UpstreamFetchError(err, "lookup product %s", product)
	}
	if len(ids) == 0 {
		return nil, models.NotFoundError("product %s not found", product)
	}

	prices, err := s.fetchPrices(ctx, ids[0].ID, city)
	if err != nil {
		s.logError("supabase fetch_series error", err, product, city)
		return nil, models.UpstreamFetchError(err, "fetch %s in %s", product, city)
	}
	if len(prices) == 0 {
		return nil, models.NotFoundError("no data for %s in %s", product, city)
	}

	out := make([]models.Observation, 0, len(prices))
	for _, p := range prices {
		d, ok := util.ParseDay(p.Date)
		if !ok {
			return nil, models.UpstreamFetchError(fmt.Errorf("bad date %q", p.Date), "fetch %s in %s", product, city)
		}
		out = append(out, models.Observation{
			Product: product,
			City:    city,
			Date:    d,
			Price:   p.Price.InexactFloat64(),
		})
	}

	if s.l != nil {
		s.l.Debug("supabase fetch_series ok",
			applogger.String("product", product),
			applogger.String("city", city),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// fetchPrices pages through market_prices; the server truncates any single response
// to its max-rows setting, so a page shorter than pageSize ends the series.
func (s *SupabaseSource) fetchPrices(ctx context.Context, productID int64, city string) ([]supabasePrice, error) {
	var out []supabasePrice
	for offset := 0; ; {
		var page []supabasePrice
		err := s.get(ctx, "market_prices", map[string][]string{
			"select":     {"date,price"},
			"product_id": {fmt.Sprintf("eq.%d", productID)},
			"city":       {"eq." + city},
			"order":      {"date.asc,price.asc"},
			"limit":      {strconv.Itoa(s.pageSize)},
			"offset":     {strconv.Itoa(offset)},
		}, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			return out, nil
		}
		offset += len(page)
	}
}

func (s *SupabaseSource) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := s.get(ctx, "products", map[string][]string{
		"select": {"name,category"},
		"order":  {"name.asc"},
	}, &out)
	if err != nil {
		return nil, models.UpstreamFetchError(err, "list products")
	}
	return out, nil
}

type supabasePrediction struct {
	Product      string          `json:"product"`
	City         string          `json:"city"`
	PredictDate  string          `json:"predict_date"`
	Price        decimal.Decimal `json:"predicted_price"`
	ModelVersion string          `json:"model_version"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SavePredictions inserts forecast records into the predictions table, merging duplicates.
func (s *SupabaseSource) SavePredictions(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]supabasePrediction, 0, len(records))
	for _, r := range records {
		rows = append(rows, supabasePrediction{
			Product:      r.Product,
			City:         r.City,
			PredictDate:  r.Date.Format(models.DateLayout),
			Price:        decimal.NewFromFloat(r.Price).Round(2),
			ModelVersion: r.ModelVersion,
			CreatedAt:    r.GeneratedAt.UTC(),
		})
	}

	headers := s.headers()
	headers["Prefer"] = "resolution=merge-duplicates,return=minimal"
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.baseURL + url.PathEscape(s.predictionsTable),
		QueryParams: map[string][]string{
			"on_conflict": {"product,city,predict_date,model_version"},
		},
		Headers: headers,
		Body:    rows,
	}, nil)
	if err != nil {
		if s.l != nil {
			s.l.Error("supabase save_predictions error", applogger.Int("rows", len(rows)), applogger.Error(err))
		}
		return fmt.Errorf("save predictions: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources.
func (s *SupabaseSource) Close() error { return nil }

func (s *SupabaseSource) get(ctx context.Context, table string, query map[string][]string, dest interface{}) error {
	return s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         s.baseURL + table,
		Headers:     s.headers(),
		QueryParams: query,
	}, dest)
}

func (s *SupabaseSource) headers() map[string]string {
	return map[string]string{
		"apikey":        s.key,
		"Authorization": "Bearer " + s.key,
		"Accept":        "application/json",
	}
}

func (s *SupabaseSource) logError(msg string, err error, product, city string) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("product", product),
		applogger.String("city", city),
		applogger.Error(err),
	)
}

var (
	_ domrepo.SeriesSource   = (*SupabaseSource)(nil)
	_ domrepo.ProductCatalog = (*SupabaseSource)(nil)
	_ domrepo.PredictionSink = (*SupabaseSource)(nil)
)
