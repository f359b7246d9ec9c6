package services

import (
	"cmp"
	"math"
	"slices"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

// YearlyBreakdown rolls records up per (SKU, year), sorted by SKU then year.
// Growth is the fractional change against the previous year of the same SKU;
// the first year of each SKU has NaN growth.
func YearlyBreakdown(records []models.WeeklyRecord) []models.YearSummary {
	type key struct {
		sku  string
		year int
	}
	type acc struct {
		units, value, r2, mape float64
		n                      int
	}

	groups := make(map[key]*acc)
	for _, r := range records {
		k := key{r.SKU, r.Year}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.units += r.Units
		a.value += r.Value
		a.r2 += r.R2
		a.mape += r.MAPE
		a.n++
	}

	out := make([]models.YearSummary, 0, len(groups))
	for k, a := range groups {
		out = append(out, models.YearSummary{
			SKU:   k.sku,
			Year:  k.year,
			Units: a.units,
			Value: a.value,
			Rsq:   a.r2 / float64(a.n),
			MAPE:  a.mape / float64(a.n),
		})
	}
	slices.SortFunc(out, func(a, b models.YearSummary) int {
		return cmp.Or(cmp.Compare(a.SKU, b.SKU), cmp.Compare(a.Year, b.Year))
	})

	for i := range out {
		if i == 0 || out[i-1].SKU != out[i].SKU {
			out[i].UnitGrowth = models.Measure(math.NaN())
			out[i].ValueGrowth = models.Measure(math.NaN())
			continue
		}
		out[i].UnitGrowth = pctChange(out[i-1].Units, out[i].Units)
		out[i].ValueGrowth = pctChange(out[i-1].Value, out[i].Value)
	}
	return out
}

func pctChange(prev, cur float64) models.Measure {
	return models.Measure((cur - prev) / prev)
}

// SummarizeSKU builds the KPI card for records, normally the rows of one SKU.
// Sales and growth come from the first yearly row matching referenceYear;
// MAPE and R2 are means over every yearly row.
func SummarizeSKU(records []models.WeeklyRecord, referenceYear int) (models.SKUMetrics, error) {
	yearly := YearlyBreakdown(records)

	idx := slices.IndexFunc(yearly, func(y models.YearSummary) bool {
		return y.Year == referenceYear
	})
	if idx < 0 {
		return models.SKUMetrics{}, errors.NotFoundf("no sales in reference year %d", referenceYear)
	}
	ref := yearly[idx]

	var mape, r2 float64
	for _, y := range yearly {
		mape += y.MAPE
		r2 += y.Rsq
	}
	n := float64(len(yearly))

	return models.SKUMetrics{
		SKU:            ref.SKU,
		ReferenceYear:  referenceYear,
		UnitsSales:     ref.Units,
		ValueSales:     ref.Value,
		UnitYoYGrowth:  ref.UnitGrowth,
		ValueYoYGrowth: ref.ValueGrowth,
		MAPE:           mape / n,
		R2:             r2 / n,
	}, nil
}

// TopSKUs ranks SKUs by value sales in year, highest first, ties broken by
// SKU. A limit of zero or less returns every SKU with sales that year.
func TopSKUs(records []models.WeeklyRecord, year, limit int) []models.SKURanking {
	bySKU := make(map[string]*models.SKURanking)
	for _, r := range records {
		if r.Year != year {
			continue
		}
		rank, ok := bySKU[r.SKU]
		if !ok {
			rank = &models.SKURanking{SKU: r.SKU}
			bySKU[r.SKU] = rank
		}
		rank.Units += r.Units
		rank.Value += r.Value
		rank.Weeks++
	}

	out := make([]models.SKURanking, 0, len(bySKU))
	for _, rank := range bySKU {
		out = append(out, *rank)
	}
	slices.SortFunc(out, func(a, b models.SKURanking) int {
		return cmp.Or(cmp.Compare(b.Value, a.Value), cmp.Compare(a.SKU, b.SKU))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
