package features

import (
	"math"
	"slices"
	"time"

	"AgriCast/internal/domain/models"
	xutil "AgriCast/pkg/util"

	"gonum.org/v1/gonum/stat"
)

// Normalize collapses raw observations into one averaged point per calendar date,
// sorted ascending. Observation order does not matter.
func Normalize(obs []models.Observation) (models.DailySeries, error) {
	if len(obs) == 0 {
		return nil, models.NotFoundError("no observations")
	}

	groups := make(map[time.Time][]float64, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Price) || math.IsInf(o.Price, 0) || o.Price <= 0 {
			return nil, models.InvalidArgumentError("invalid price %v on %s", o.Price, o.Date.Format(models.DateLayout))
		}
		day := xutil.TruncateDay(o.Date)
		groups[day] = append(groups[day], o.Price)
	}

	series := make(models.DailySeries, 0, len(groups))
	for day, prices := range groups {
		series = append(series, models.DailyPoint{Date: day, AvgPrice: stat.Mean(prices, nil)})
	}
	slices.SortFunc(series, func(a, b models.DailyPoint) int {
		return a.Date.Compare(b.Date)
	})
	return series, nil
}
