package registry

import (
	"context"
	"errors"

	"github.com/hyperjump/kumitate/internal/models"
)

// SampleDefinitions returns the sample analytics queries used to seed a fresh
// registry. Statements use named parameters in the source's @name syntax.
func SampleDefinitions() []models.QueryDefinition {
	return []models.QueryDefinition{
		{
			Name:        "daily_active_users",
			Category:    "engagement",
			Statement:   "SELECT event_date, COUNT(DISTINCT user_id) AS dau\nFROM analytics.events\nWHERE event_date BETWEEN @start_date AND @end_date\nGROUP BY event_date\nORDER BY event_date",
			Description: "Daily active users over a date range",
			Parameters: []models.ParameterSpec{
				{Name: "start_date", Kind: models.KindString, Required: true, Description: "inclusive ISO start date"},
				{Name: "end_date", Kind: models.KindString, Required: true, Description: "inclusive ISO end date"},
			},
			Enabled:   true,
			CreatedBy: "seed",
			Tags:      []string{"sample", "engagement"},
		},
		{
			Name:        "revenue_by_region",
			Category:    "sales",
			Statement:   "SELECT region, SUM(amount_usd) AS revenue\nFROM sales.orders\nWHERE order_date >= @since\nGROUP BY region\nORDER BY revenue DESC",
			Description: "Total revenue per region since a date",
			Parameters: []models.ParameterSpec{
				{Name: "since", Kind: models.KindString, Required: true, Description: "ISO date lower bound"},
			},
			Enabled:   true,
			CreatedBy: "seed",
			Tags:      []string{"sample", "sales"},
		},
		{
			Name:        "top_customers",
			Category:    "sales",
			Statement:   "SELECT customer_id, SUM(amount_usd) AS total\nFROM sales.orders\nGROUP BY customer_id\nORDER BY total DESC\nLIMIT @limit",
			Description: "Highest-spending customers",
			Parameters: []models.ParameterSpec{
				{Name: "limit", Kind: models.KindInteger, Required: false, Default: 10, Description: "number of customers to return"},
			},
			Enabled:   true,
			CreatedBy: "seed",
			Tags:      []string{"sample", "sales"},
		},
		{
			Name:        "churned_customers",
			Category:    "retention",
			Statement:   "SELECT customer_id, MAX(order_date) AS last_order\nFROM sales.orders\nGROUP BY customer_id\nHAVING MAX(order_date) < DATE_SUB(CURRENT_DATE(), INTERVAL @inactive_days DAY)",
			Description: "Customers with no orders in the given window",
			Parameters: []models.ParameterSpec{
				{Name: "inactive_days", Kind: models.KindInteger, Required: false, Default: 90},
			},
			Enabled:   true,
			CreatedBy: "seed",
			Tags:      []string{"sample", "retention"},
		},
		{
			Name:        "error_rate_by_service",
			Category:    "operations",
			Statement:   "SELECT service, COUNTIF(severity = 'ERROR') / COUNT(*) AS error_rate\nFROM ops.logs\nWHERE ts >= TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL @hours HOUR)\n  AND (@services IS NULL OR service IN UNNEST(@services))\nGROUP BY service",
			Description: "Error rate per service over a trailing window",
			Parameters: []models.ParameterSpec{
				{Name: "hours", Kind: models.KindInteger, Required: false, Default: 24},
				{Name: "services", Kind: models.KindArray, Required: false, Description: "optional service filter"},
			},
			Enabled:   true,
			CreatedBy: "seed",
			Tags:      []string{"sample", "operations"},
		},
		{
			Name:        "slow_queries",
			Category:    "operations",
			Statement:   "SELECT query_id, avg_runtime_ms\nFROM ops.query_stats\nWHERE avg_runtime_ms > @threshold_ms\nORDER BY avg_runtime_ms DESC",
			Description: "Queries slower than a runtime threshold",
			Parameters: []models.ParameterSpec{
				{Name: "threshold_ms", Kind: models.KindFloat, Required: false, Default: 1000.0},
			},
			Enabled:   false, // disabled by default: noisy on small deployments
			CreatedBy: "seed",
			Tags:      []string{"sample", "operations"},
		},
	}
}

// Seed inserts the sample definitions, skipping names that already exist.
// It returns the number of definitions created.
func Seed(ctx context.Context, reg Registry) (int, error) {
	created := 0
	for _, def := range SampleDefinitions() {
		_, err := reg.Get(ctx, def.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		d := def
		if err := reg.Create(ctx, &d); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
