package variance

import "github.com/shopspring/decimal"

type FlagStats struct {
	Count         int64           `json:"count"`
	VarianceSum   decimal.Decimal `json:"variance_sum"`
	AbsoluteTotal decimal.Decimal `json:"absolute_total"`
}

// Summary aggregates a classified record set for dashboard display.
type Summary struct {
	Total            int64           `json:"total"`
	CurrentYearTotal decimal.Decimal `json:"current_year_total"`
	PriorYearTotal   decimal.Decimal `json:"prior_year_total"`
	NetVariance      decimal.Decimal `json:"net_variance"`

	None        FlagStats `json:"none"`
	Moderate    FlagStats `json:"moderate"`
	Significant FlagStats `json:"significant"`

	// FlaggedPercentage is the share of records flagged moderate or
	// significant, 0 for an empty set.
	FlaggedPercentage float64 `json:"flagged_percentage"`
}

func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		s.CurrentYearTotal = s.CurrentYearTotal.Add(r.CurrentYearBalance)
		s.PriorYearTotal = s.PriorYearTotal.Add(r.PriorYearBalance)
		s.NetVariance = s.NetVariance.Add(r.Variance)

		var fs *FlagStats
		switch r.Flag {
		case FlagSignificant:
			fs = &s.Significant
		case FlagModerate:
			fs = &s.Moderate
		default:
			fs = &s.None
		}
		fs.Count++
		fs.VarianceSum = fs.VarianceSum.Add(r.Variance)
		fs.AbsoluteTotal = fs.AbsoluteTotal.Add(r.Variance.Abs())
	}

	if s.Total > 0 {
		flagged := s.Moderate.Count + s.Significant.Count
		s.FlaggedPercentage = float64(flagged) / float64(s.Total) * 100
	}
	return s
}
