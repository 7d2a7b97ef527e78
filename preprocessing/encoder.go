// Package preprocessing maps clean records onto numeric feature columns and
// scales them for distance and gradient based classifiers.
package preprocessing

import (
	"fmt"
	"strings"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
)

// Kind selects how a categorical field becomes numeric columns.
type Kind int

const (
	// OneHot emits one 0/1 column per value except the first, which is the
	// reference category.
	OneHot Kind = iota
	// Ordinal emits one column holding the value's index.
	Ordinal
	// Binary emits one 0/1 column that is 1 for Values[1].
	Binary
)

func (k Kind) String() string {
	switch k {
	case OneHot:
		return "one_hot"
	case Ordinal:
		return "ordinal"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "one_hot":
		*k = OneHot
	case "ordinal":
		*k = Ordinal
	case "binary":
		*k = Binary
	default:
		return errors.NewConfigurationError("encoding.kind", "must be one_hot, ordinal or binary", string(b))
	}
	return nil
}

// FieldMapping is the fixed value list of one categorical field.
type FieldMapping struct {
	Field  string   `json:"field"`
	Kind   Kind     `json:"kind"`
	Values []string `json:"values"`
}

// MappingTable declares every categorical field and its ordered values. It
// is versioned so an encoded set can be traced to the table that built it.
type MappingTable struct {
	Version string         `json:"version"`
	Fields  []FieldMapping `json:"fields"`
}

// DefaultMappingTable returns the telco-v1 table. Reference categories are
// the alphabetically first values.
func DefaultMappingTable() MappingTable {
	return MappingTable{
		Version: "telco-v1",
		Fields: []FieldMapping{
			{Field: "contract_type", Kind: OneHot, Values: []string{"month-to-month", "one-year", "two-year"}},
			{Field: "payment_type", Kind: OneHot, Values: []string{"bank-transfer-auto", "credit-card-auto", "electronic-check", "mailed-check"}},
			{Field: "internet_service_type", Kind: OneHot, Values: []string{"dsl", "fiber", "none"}},
			{Field: "gender", Kind: Binary, Values: []string{"female", "male"}},
		},
	}
}

// Numeric column names, always first in the schema.
const (
	ColumnTenure         = "tenure_months"
	ColumnMonthlyCharges = "monthly_charges"
	ColumnTotalCharges   = "total_charges"
)

// columnName joins field and value into a column name:
// ("payment_type", "credit-card-auto") -> "payment_type_credit_card_auto".
func columnName(field, value string) string {
	return field + "_" + strings.ReplaceAll(value, "-", "_")
}

// Validate checks the table for structural errors.
func (t MappingTable) Validate() error {
	if strings.TrimSpace(t.Version) == "" {
		return errors.NewConfigurationError("encoding.version", "must not be empty", t.Version)
	}
	seen := make(map[string]bool)
	for _, f := range t.Fields {
		if _, ok := (dataset.Record{}).Categorical(f.Field); !ok {
			return errors.NewConfigurationError("encoding.fields", "not a categorical field", f.Field)
		}
		if seen[f.Field] {
			return errors.NewConfigurationError("encoding.fields", "duplicate field", f.Field)
		}
		seen[f.Field] = true

		switch {
		case f.Kind == Binary && len(f.Values) != 2:
			return errors.NewConfigurationError("encoding."+f.Field, "binary fields need exactly 2 values", f.Values)
		case len(f.Values) < 2:
			return errors.NewConfigurationError("encoding."+f.Field, "need at least 2 values", f.Values)
		}
		values := make(map[string]bool, len(f.Values))
		for _, v := range f.Values {
			if values[v] {
				return errors.NewConfigurationError("encoding."+f.Field, "duplicate value", v)
			}
			values[v] = true
		}
	}
	return nil
}

// fieldLayout records where a field's columns sit in the schema.
type fieldLayout struct {
	FieldMapping
	offset int
	index  map[string]int
}

func (l fieldLayout) width() int {
	if l.Kind == OneHot {
		return len(l.Values) - 1
	}
	return 1
}

// CategoricalEncoder encodes clean records against a fixed MappingTable.
// The column schema depends only on the table, never on the records.
type CategoricalEncoder struct {
	table   MappingTable
	columns []string
	layout  []fieldLayout
}

// NewCategoricalEncoder validates table and derives the column schema.
func NewCategoricalEncoder(table MappingTable) (*CategoricalEncoder, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	columns := []string{ColumnTenure, ColumnMonthlyCharges, ColumnTotalCharges}
	columns = append(columns, dataset.FlagNames...)

	e := &CategoricalEncoder{table: table}
	for _, f := range table.Fields {
		l := fieldLayout{FieldMapping: f, offset: len(columns), index: make(map[string]int, len(f.Values))}
		for i, v := range f.Values {
			l.index[v] = i
		}
		switch f.Kind {
		case OneHot:
			for _, v := range f.Values[1:] {
				columns = append(columns, columnName(f.Field, v))
			}
		case Binary:
			columns = append(columns, columnName(f.Field, f.Values[1]))
		case Ordinal:
			columns = append(columns, f.Field)
		}
		e.layout = append(e.layout, l)
	}
	e.columns = columns
	return e, nil
}

// Columns returns the encoded column schema.
func (e *CategoricalEncoder) Columns() []string {
	return append([]string(nil), e.columns...)
}

// Version returns the mapping table version.
func (e *CategoricalEncoder) Version() string {
	return e.table.Version
}

// Encode maps records in order. A categorical value missing from the table
// fails the whole batch with an UnknownCategoryError.
func (e *CategoricalEncoder) Encode(records []dataset.Record) (*dataset.EncodedSet, error) {
	set := &dataset.EncodedSet{
		Columns:        e.Columns(),
		Records:        make([]dataset.EncodedRecord, len(records)),
		MappingVersion: e.table.Version,
	}
	for i, r := range records {
		enc, err := e.encodeOne(r)
		if err != nil {
			return nil, err
		}
		set.Records[i] = enc
	}
	return set, nil
}

func (e *CategoricalEncoder) encodeOne(r dataset.Record) (dataset.EncodedRecord, error) {
	features := make([]float64, len(e.columns))
	features[0] = float64(r.TenureMonths)
	features[1] = r.MonthlyCharges.InexactFloat64()
	features[2] = r.TotalCharges.InexactFloat64()
	for i, flag := range r.Flags() {
		if flag {
			features[3+i] = 1
		}
	}

	for _, l := range e.layout {
		value, _ := r.Categorical(l.Field)
		if err := l.put(features, value); err != nil {
			return dataset.EncodedRecord{}, err
		}
	}

	enc := dataset.EncodedRecord{CustomerID: r.CustomerID, Features: features}
	if r.Churned != nil {
		enc.Labeled = true
		if *r.Churned {
			enc.Label = 1
		}
	}
	return enc, nil
}

// put writes value's columns into features.
func (l fieldLayout) put(features []float64, value string) error {
	idx, ok := l.index[value]
	if !ok {
		return errors.NewUnknownCategoryError(l.Field, value)
	}
	switch l.Kind {
	case OneHot:
		for k := 0; k < l.width(); k++ {
			features[l.offset+k] = 0
		}
		if idx > 0 {
			features[l.offset+idx-1] = 1
		}
	case Binary, Ordinal:
		features[l.offset] = float64(idx)
	}
	return nil
}

// get reads a field's value back from features.
func (l fieldLayout) get(features []float64) (string, error) {
	switch l.Kind {
	case OneHot:
		value := l.Values[0]
		hot := 0
		for k := 0; k < l.width(); k++ {
			switch features[l.offset+k] {
			case 0:
			case 1:
				hot++
				value = l.Values[k+1]
			default:
				return "", errors.NewValueError("Decode", fmt.Sprintf("column %s is not 0/1", columnName(l.Field, l.Values[k+1])))
			}
		}
		if hot > 1 {
			return "", errors.NewValueError("Decode", fmt.Sprintf("%d active columns for %s", hot, l.Field))
		}
		return value, nil
	default:
		v := features[l.offset]
		idx := int(v)
		if float64(idx) != v || idx < 0 || idx >= len(l.Values) {
			return "", errors.NewValueError("Decode", fmt.Sprintf("invalid code %v for %s", v, l.Field))
		}
		return l.Values[idx], nil
	}
}

// Decode recovers the categorical values of an encoded feature row.
func (e *CategoricalEncoder) Decode(features []float64) (map[string]string, error) {
	if len(features) != len(e.columns) {
		return nil, errors.NewDimensionError("Decode", len(e.columns), len(features), 1)
	}
	out := make(map[string]string, len(e.layout))
	for _, l := range e.layout {
		v, err := l.get(features)
		if err != nil {
			return nil, err
		}
		out[l.Field] = v
	}
	return out, nil
}

// Reencode decodes the categorical columns of rec and encodes them again.
// For any row produced by Encode the result equals rec.
func (e *CategoricalEncoder) Reencode(rec dataset.EncodedRecord) (dataset.EncodedRecord, error) {
	values, err := e.Decode(rec.Features)
	if err != nil {
		return dataset.EncodedRecord{}, err
	}
	features := append([]float64(nil), rec.Features...)
	for _, l := range e.layout {
		if err := l.put(features, values[l.Field]); err != nil {
			return dataset.EncodedRecord{}, err
		}
	}
	rec.Features = features
	return rec, nil
}
