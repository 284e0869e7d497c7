package domain

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ForecastWindow is how many of the most recent orders feed the moving average.
const ForecastWindow = 10

// Observation is the quantity of a product one order took.
type Observation struct {
	OrderID    int64     `json:"order_id"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Forecast is the demand view of one product: the latest orders for it and
// their moving average.
type Forecast struct {
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Observations  []Observation   `json:"observations"`
	AverageDemand decimal.Decimal `json:"average_demand"`
}

// Clone returns a copy that shares no slices with f.
func (f Forecast) Clone() Forecast {
	f.Observations = slices.Clone(f.Observations)
	return f
}

// Observe adds obs to the window, oldest first, and recomputes the average.
// It returns false when the order is already counted or is older than every
// order a full window keeps.
func (f *Forecast) Observe(obs Observation) bool {
	if obs.Quantity <= 0 {
		return false
	}
	for _, existing := range f.Observations {
		if existing.OrderID == obs.OrderID {
			return false
		}
	}
	window := append(slices.Clone(f.Observations), obs)
	slices.SortFunc(window, compareObservations)
	if len(window) > ForecastWindow {
		if window[0].OrderID == obs.OrderID {
			return false
		}
		window = window[len(window)-ForecastWindow:]
	}
	f.Observations = window
	f.AverageDemand = average(window)
	return true
}

func compareObservations(a, b Observation) int {
	if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
		return c
	}
	return cmp.Compare(a.OrderID, b.OrderID)
}

func average(window []Observation) decimal.Decimal {
	if len(window) == 0 {
		return decimal.Zero
	}
	total := 0
	for _, obs := range window {
		total += obs.Quantity
	}
	return decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(int64(len(window)))).Round(2)
}
