package prepare

import (
	"strings"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultChargeTolerance is the relative gap between total_charges and
// tenure × monthly_charges above which a record is counted as inconsistent.
var DefaultChargeTolerance = decimal.NewFromFloat(0.25)

// Filter parses the numeric fields of normalized records and excludes any
// record where parsing fails.
type Filter struct {
	tolerance decimal.Decimal
}

// NewFilter builds a filter. tolerance is relative: 0.25 flags totals more
// than 25% away from tenure × monthly_charges.
func NewFilter(tolerance decimal.Decimal) (*Filter, error) {
	if tolerance.IsNegative() {
		return nil, errors.NewConfigurationError("prepare.charge_tolerance", "must be non-negative", tolerance.String())
	}
	return &Filter{tolerance: tolerance}, nil
}

// FilterResult is the output of Apply.
type FilterResult struct {
	Records []dataset.Record

	// Excluded holds one ValidationError per dropped record.
	Excluded []error

	// Inconsistent lists the ids whose charges disagree beyond tolerance.
	// They are retained.
	Inconsistent []string
}

// Apply validates partials in order.
func (f *Filter) Apply(partials []Partial) FilterResult {
	res := FilterResult{Records: make([]dataset.Record, 0, len(partials))}
	for _, p := range partials {
		rec, err := f.clean(p)
		if err != nil {
			res.Excluded = append(res.Excluded, err)
			continue
		}
		if !f.consistent(rec) {
			res.Inconsistent = append(res.Inconsistent, rec.CustomerID)
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

func (f *Filter) clean(p Partial) (dataset.Record, error) {
	tenure, err := parseTenure(p.CustomerID, p.Tenure)
	if err != nil {
		return dataset.Record{}, err
	}
	monthly, err := parseCharge(p.CustomerID, dataset.FieldMonthlyCharges, p.MonthlyCharges)
	if err != nil {
		return dataset.Record{}, err
	}
	total, err := parseCharge(p.CustomerID, dataset.FieldTotalCharges, p.TotalCharges)
	if err != nil {
		return dataset.Record{}, err
	}

	return dataset.Record{
		CustomerID:          p.CustomerID,
		Gender:              p.Gender,
		SeniorCitizen:       p.SeniorCitizen,
		Partner:             p.Partner,
		Dependents:          p.Dependents,
		TenureMonths:        tenure,
		MonthlyCharges:      monthly,
		TotalCharges:        total,
		ContractType:        p.ContractType,
		PaymentType:         p.PaymentType,
		InternetServiceType: p.InternetServiceType,
		PhoneService:        p.PhoneService,
		MultipleLines:       p.MultipleLines,
		OnlineSecurity:      p.OnlineSecurity,
		OnlineBackup:        p.OnlineBackup,
		DeviceProtection:    p.DeviceProtection,
		TechSupport:         p.TechSupport,
		StreamingTV:         p.StreamingTV,
		StreamingMovies:     p.StreamingMovies,
		PaperlessBilling:    p.PaperlessBilling,
		Churned:             p.Churned,
	}, nil
}

// consistent reports whether total_charges is within tolerance of
// tenure × monthly_charges, relative to the larger of the two.
func (f *Filter) consistent(r dataset.Record) bool {
	expected := r.MonthlyCharges.Mul(decimal.NewFromInt(int64(r.TenureMonths)))
	scale := decimal.Max(expected, r.TotalCharges)
	if scale.IsZero() {
		return true
	}
	gap := r.TotalCharges.Sub(expected).Abs()
	return !gap.GreaterThan(scale.Mul(f.tolerance))
}

func parseCharge(id, field, raw string) (decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return decimal.Zero, errors.NewValidationError(id, field, raw, "blank value")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.NewValidationError(id, field, raw, "not a decimal")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.NewValidationError(id, field, raw, "negative value")
	}
	return d, nil
}

func parseTenure(id, raw string) (int, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, errors.NewValidationError(id, dataset.FieldTenure, raw, "blank value")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, errors.NewValidationError(id, dataset.FieldTenure, raw, "not a number")
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, errors.NewValidationError(id, dataset.FieldTenure, raw, "not a whole number of months")
	}
	if d.IsNegative() {
		return 0, errors.NewValidationError(id, dataset.FieldTenure, raw, "negative value")
	}
	return int(d.IntPart()), nil
}
