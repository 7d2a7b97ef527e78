// Package prepare turns raw customer rows into clean records.
//
// Normalization coerces field representations and drops structurally broken
// rows; filtering validates the numeric fields and drops rows that cannot be
// parsed. Neither stage imputes values. Per-record failures are collected
// and counted, never returned as a batch error.
package prepare

import (
	"strings"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
)

// DefaultRedundantFields are lookup ids fully determined by the readable
// name columns the source joins in.
var DefaultRedundantFields = []string{
	dataset.FieldContractTypeID,
	dataset.FieldInternetServiceTypeID,
	dataset.FieldPaymentTypeID,
}

// consumed lists the raw fields the clean record shape is built from.
// None of them may be declared redundant.
var consumed = map[string]bool{
	dataset.FieldCustomerID:          true,
	dataset.FieldGender:              true,
	dataset.FieldSeniorCitizen:       true,
	dataset.FieldPartner:             true,
	dataset.FieldDependents:          true,
	dataset.FieldTenure:              true,
	dataset.FieldPhoneService:        true,
	dataset.FieldMultipleLines:       true,
	dataset.FieldOnlineSecurity:      true,
	dataset.FieldOnlineBackup:        true,
	dataset.FieldDeviceProtection:    true,
	dataset.FieldTechSupport:         true,
	dataset.FieldStreamingTV:         true,
	dataset.FieldStreamingMovies:     true,
	dataset.FieldPaperlessBilling:    true,
	dataset.FieldMonthlyCharges:      true,
	dataset.FieldTotalCharges:        true,
	dataset.FieldChurn:               true,
	dataset.FieldContractType:        true,
	dataset.FieldInternetServiceType: true,
	dataset.FieldPaymentType:         true,
}

// categoryAliases maps lowercased source spellings to canonical values.
var categoryAliases = map[string]string{
	"month-to-month":            "month-to-month",
	"one year":                  "one-year",
	"one-year":                  "one-year",
	"two year":                  "two-year",
	"two-year":                  "two-year",
	"electronic check":          "electronic-check",
	"electronic-check":          "electronic-check",
	"mailed check":              "mailed-check",
	"mailed-check":              "mailed-check",
	"bank transfer (automatic)": "bank-transfer-auto",
	"bank-transfer-auto":        "bank-transfer-auto",
	"credit card (automatic)":   "credit-card-auto",
	"credit-card-auto":          "credit-card-auto",
	"dsl":                       "dsl",
	"fiber optic":               "fiber",
	"fiber":                     "fiber",
	"none":                      "none",
	"female":                    "female",
	"male":                      "male",
}

// Partial is a normalized record whose numeric fields are still text.
type Partial struct {
	CustomerID string

	Gender              string
	ContractType        string
	PaymentType         string
	InternetServiceType string

	SeniorCitizen    bool
	Partner          bool
	Dependents       bool
	PhoneService     bool
	MultipleLines    bool
	OnlineSecurity   bool
	OnlineBackup     bool
	DeviceProtection bool
	TechSupport      bool
	StreamingTV      bool
	StreamingMovies  bool
	PaperlessBilling bool

	Tenure         string
	MonthlyCharges string
	TotalCharges   string

	Churned *bool
}

// Normalizer maps raw rows onto the Partial shape.
type Normalizer struct {
	required []string
}

// NewNormalizer builds a normalizer. Every data dictionary field except the
// churn label and the redundant fields is required by key. Declaring a field
// the clean record depends on, or one outside the data dictionary, redundant
// is a ConfigurationError.
func NewNormalizer(redundant []string) (*Normalizer, error) {
	skip := make(map[string]bool, len(redundant))
	for _, f := range redundant {
		if consumed[f] {
			return nil, errors.NewConfigurationError("prepare.redundant_fields", "field is part of the clean record", f)
		}
		if !isRawField(f) {
			return nil, errors.NewConfigurationError("prepare.redundant_fields", "unknown raw field", f)
		}
		skip[f] = true
	}

	var required []string
	for _, f := range dataset.RawFields {
		if f == dataset.FieldChurn || skip[f] {
			continue
		}
		required = append(required, f)
	}
	return &Normalizer{required: required}, nil
}

func isRawField(f string) bool {
	for _, known := range dataset.RawFields {
		if f == known {
			return true
		}
	}
	return false
}

// Required returns the raw keys every record must carry.
func (n *Normalizer) Required() []string {
	return append([]string(nil), n.required...)
}

// Normalize converts raw rows in order. Rows that are missing a required key
// or carry an uncoercible value are dropped and reported as SchemaErrors.
// Repeated customer_ids are kept here; Prepare resolves them after filtering.
func (n *Normalizer) Normalize(raw []dataset.RawRecord) ([]Partial, []error) {
	out := make([]Partial, 0, len(raw))
	var dropped []error
	for _, rec := range raw {
		p, err := n.normalizeOne(rec)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		out = append(out, p)
	}
	return out, dropped
}

func (n *Normalizer) normalizeOne(rec dataset.RawRecord) (Partial, error) {
	id := strings.TrimSpace(rec.ID())
	for _, f := range n.required {
		if _, ok := rec[f]; !ok {
			return Partial{}, errors.NewSchemaError(id, f, "missing required field")
		}
	}
	if id == "" {
		return Partial{}, errors.NewSchemaError("", dataset.FieldCustomerID, "blank customer_id")
	}

	p := Partial{
		CustomerID:     id,
		Tenure:         rec[dataset.FieldTenure],
		MonthlyCharges: rec[dataset.FieldMonthlyCharges],
		TotalCharges:   rec[dataset.FieldTotalCharges],
	}

	categorical := []struct {
		field string
		dst   *string
	}{
		{dataset.FieldGender, &p.Gender},
		{dataset.FieldContractType, &p.ContractType},
		{dataset.FieldPaymentType, &p.PaymentType},
		{dataset.FieldInternetServiceType, &p.InternetServiceType},
	}
	for _, c := range categorical {
		v, err := canonicalCategory(id, c.field, rec[c.field])
		if err != nil {
			return Partial{}, err
		}
		*c.dst = v
	}

	flags := []struct {
		field string
		dst   *bool
	}{
		{dataset.FieldSeniorCitizen, &p.SeniorCitizen},
		{dataset.FieldPartner, &p.Partner},
		{dataset.FieldDependents, &p.Dependents},
		{dataset.FieldPhoneService, &p.PhoneService},
		{dataset.FieldMultipleLines, &p.MultipleLines},
		{dataset.FieldOnlineSecurity, &p.OnlineSecurity},
		{dataset.FieldOnlineBackup, &p.OnlineBackup},
		{dataset.FieldDeviceProtection, &p.DeviceProtection},
		{dataset.FieldTechSupport, &p.TechSupport},
		{dataset.FieldStreamingTV, &p.StreamingTV},
		{dataset.FieldStreamingMovies, &p.StreamingMovies},
		{dataset.FieldPaperlessBilling, &p.PaperlessBilling},
	}
	for _, f := range flags {
		v, ok := parseBool(rec[f.field])
		if !ok {
			return Partial{}, errors.NewSchemaError(id, f.field, "not a boolean: "+rec[f.field])
		}
		*f.dst = v
	}

	if label, ok := rec[dataset.FieldChurn]; ok && strings.TrimSpace(label) != "" {
		v, ok := parseBool(label)
		if !ok {
			return Partial{}, errors.NewSchemaError(id, dataset.FieldChurn, "not a boolean: "+label)
		}
		p.Churned = dataset.Bool(v)
	}
	return p, nil
}

// canonicalCategory maps known spellings through categoryAliases. Unknown
// values pass through trimmed so the encoder can name them.
func canonicalCategory(id, field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", errors.NewSchemaError(id, field, "blank value")
	}
	if canon, ok := categoryAliases[strings.ToLower(v)]; ok {
		return canon, nil
	}
	return v, nil
}

// parseBool accepts yes/no, true/false and 1/0 in any case. The service
// sentinels "No phone service" and "No internet service" mean false.
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1":
		return true, true
	case "no", "false", "0", "no phone service", "no internet service":
		return false, true
	default:
		return false, false
	}
}
