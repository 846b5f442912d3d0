package variance

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

type Flag string

const (
	FlagNone        Flag = "none"
	FlagModerate    Flag = "moderate"
	FlagSignificant Flag = "significant"
)

// Valid reports whether f is one of the known flags.
func (f Flag) Valid() bool {
	switch f {
	case FlagNone, FlagModerate, FlagSignificant:
		return true
	}
	return false
}

const (
	DefaultMaterialityThreshold = 10.0
	DefaultSignificantThreshold = 25.0

	// zeroPriorPercentage is reported for accounts with no prior-year balance
	// but a non-zero movement. The sign follows the variance.
	zeroPriorPercentage = 100.0

	// percentScale is the number of decimal places kept when dividing by the
	// prior balance. It exceeds float64 precision, so rounding never moves a
	// percentage across a threshold.
	percentScale = 20
)

var ErrInvalidThreshold = errors.New("invalid threshold")

// ThresholdConfig holds the two percentage bounds used for classification.
// Both are inclusive lower bounds.
type ThresholdConfig struct {
	MaterialityThreshold float64 `json:"materiality_threshold"`
	SignificantThreshold float64 `json:"significant_threshold"`
}

func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		MaterialityThreshold: DefaultMaterialityThreshold,
		SignificantThreshold: DefaultSignificantThreshold,
	}
}

// Validate rejects negative or non-finite thresholds. An inverted pair
// (significant below materiality) is accepted: Classify resolves it.
func (t ThresholdConfig) Validate() error {
	bounds := []struct {
		name  string
		value float64
	}{
		{"materiality", t.MaterialityThreshold},
		{"significant", t.SignificantThreshold},
	}
	for _, b := range bounds {
		if math.IsNaN(b.value) || math.IsInf(b.value, 0) {
			return fmt.Errorf("%w: %s threshold is not a finite number", ErrInvalidThreshold, b.name)
		}
		if b.value < 0 {
			return fmt.Errorf("%w: %s threshold is negative", ErrInvalidThreshold, b.name)
		}
	}
	return nil
}

// Inverted reports whether the significant bound sits below the materiality bound.
func (t ThresholdConfig) Inverted() bool {
	return t.SignificantThreshold < t.MaterialityThreshold
}

// Record is one trial balance line. Variance and VariancePercentage are
// derived once by NewRecord; Flag is derived by Classify.
type Record struct {
	AccountCode        string          `json:"account_code"`
	AccountDescription string          `json:"account_description"`
	CurrentYearBalance decimal.Decimal `json:"current_year_balance"`
	PriorYearBalance   decimal.Decimal `json:"prior_year_balance"`
	Variance           decimal.Decimal `json:"variance"`
	VariancePercentage float64         `json:"variance_percentage"`
	Flag               Flag            `json:"flag"`
}

func NewRecord(code, description string, current, prior decimal.Decimal) Record {
	v, pct := ComputeVariance(current, prior)
	return Record{
		AccountCode:        code,
		AccountDescription: description,
		CurrentYearBalance: current,
		PriorYearBalance:   prior,
		Variance:           v,
		VariancePercentage: pct,
		Flag:               FlagNone,
	}
}

// ComputeVariance returns current-prior and the movement as a percentage of
// prior. A zero prior balance yields 0% when nothing moved and ±100%
// otherwise, so the result is always finite.
func ComputeVariance(current, prior decimal.Decimal) (decimal.Decimal, float64) {
	v := current.Sub(prior)

	if prior.IsZero() {
		switch v.Sign() {
		case 0:
			return v, 0
		case 1:
			return v, zeroPriorPercentage
		default:
			return v, -zeroPriorPercentage
		}
	}

	pct := v.DivRound(prior, percentScale).Mul(decimal.NewFromInt(100))
	return v, pct.InexactFloat64()
}

// ClassifyPercentage buckets a single variance percentage. The significant
// bound is checked first, so an inverted config still maps every value to
// exactly one flag. Non-finite input is treated as significant.
func ClassifyPercentage(pct float64, t ThresholdConfig) Flag {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return FlagSignificant
	}

	p := math.Abs(pct)
	switch {
	case p >= t.SignificantThreshold:
		return FlagSignificant
	case p >= t.MaterialityThreshold:
		return FlagModerate
	default:
		return FlagNone
	}
}

// Classify returns a copy of records with every Flag re-evaluated against t.
// Order and length are preserved and the input slice is not modified.
func Classify(records []Record, t ThresholdConfig) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Flag = ClassifyPercentage(r.VariancePercentage, t)
		out[i] = r
	}
	return out
}

// Reclassify re-buckets already ingested records after a threshold change.
// Variance fields are kept as they were computed at ingest.
func Reclassify(records []Record, newThresholds ThresholdConfig) []Record {
	return Classify(records, newThresholds)
}
