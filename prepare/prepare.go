package prepare

import (
	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/shopspring/decimal"
)

// Options configure Prepare.
type Options struct {
	// RedundantFields are raw columns removed from the record shape.
	RedundantFields []string

	// ChargeTolerance is the relative tolerance of the informational
	// total_charges ≈ tenure × monthly_charges check.
	ChargeTolerance decimal.Decimal
}

// DefaultOptions returns the reference options.
func DefaultOptions() Options {
	return Options{
		RedundantFields: append([]string(nil), DefaultRedundantFields...),
		ChargeTolerance: DefaultChargeTolerance,
	}
}

// Report summarizes one Prepare call. Raw = SchemaDropped +
// ValidationDropped + Retained.
type Report struct {
	Raw                 int
	SchemaDropped       int
	ValidationDropped   int
	Retained            int
	Unlabeled           int
	InconsistentCharges int

	// Errors holds the SchemaErrors then the ValidationErrors of dropped
	// records, in input order within each group.
	Errors []error
}

// Prepare normalizes and filters raw rows. The only error it returns is a
// ConfigurationError from opts; per-record failures are counted in Report.
func Prepare(raw []dataset.RawRecord, opts Options) ([]dataset.Record, Report, error) {
	logger := log.GetLoggerWithName("prepare")

	norm, err := NewNormalizer(opts.RedundantFields)
	if err != nil {
		return nil, Report{}, err
	}
	filter, err := NewFilter(opts.ChargeTolerance)
	if err != nil {
		return nil, Report{}, err
	}

	partials, schemaErrs := norm.Normalize(raw)
	res := filter.Apply(partials)
	var dups []error
	res.Records, dups = dedupe(res.Records)
	schemaErrs = append(schemaErrs, dups...)

	for _, e := range schemaErrs {
		logger.Debug("record dropped", e, log.PhaseKey, log.PhasePrepare)
	}
	for _, e := range res.Excluded {
		logger.Debug("record excluded", e, log.PhaseKey, log.PhasePrepare)
	}
	if len(res.Inconsistent) > 0 {
		logger.Debug("charges inconsistent with tenure", "customer_ids", res.Inconsistent)
	}

	report := Report{
		Raw:                 len(raw),
		SchemaDropped:       len(schemaErrs),
		ValidationDropped:   len(res.Excluded),
		Retained:            len(res.Records),
		InconsistentCharges: len(res.Inconsistent),
		Errors:              append(schemaErrs, res.Excluded...),
	}
	for _, r := range res.Records {
		if !r.Labeled() {
			report.Unlabeled++
		}
	}

	logger.Info("prepared records",
		log.RawCountKey, report.Raw,
		log.SchemaDroppedKey, report.SchemaDropped,
		log.ValidationDroppedKey, report.ValidationDropped,
		log.RetainedKey, report.Retained,
		log.InconsistentChargesKey, report.InconsistentCharges,
	)
	return res.Records, report, nil
}

// dedupe keeps the first valid record of each customer_id.
func dedupe(records []dataset.Record) ([]dataset.Record, []error) {
	out := records[:0]
	var dropped []error
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.CustomerID] {
			dropped = append(dropped, errors.NewSchemaError(r.CustomerID, dataset.FieldCustomerID, "duplicate customer_id"))
			continue
		}
		seen[r.CustomerID] = true
		out = append(out, r)
	}
	return out, dropped
}
