// Package dataset defines the record shapes that flow through the pipeline
// and the row sources that produce raw records.
package dataset

import (
	"github.com/shopspring/decimal"
)

// Raw field names of the telco data dictionary.
const (
	FieldCustomerID            = "customer_id"
	FieldGender                = "gender"
	FieldSeniorCitizen         = "senior_citizen"
	FieldPartner               = "partner"
	FieldDependents            = "dependents"
	FieldTenure                = "tenure"
	FieldPhoneService          = "phone_service"
	FieldMultipleLines         = "multiple_lines"
	FieldInternetServiceTypeID = "internet_service_type_id"
	FieldOnlineSecurity        = "online_security"
	FieldOnlineBackup          = "online_backup"
	FieldDeviceProtection      = "device_protection"
	FieldTechSupport           = "tech_support"
	FieldStreamingTV           = "streaming_tv"
	FieldStreamingMovies       = "streaming_movies"
	FieldContractTypeID        = "contract_type_id"
	FieldPaperlessBilling      = "paperless_billing"
	FieldPaymentTypeID         = "payment_type_id"
	FieldMonthlyCharges        = "monthly_charges"
	FieldTotalCharges          = "total_charges"
	FieldChurn                 = "churn"
	FieldContractType          = "contract_type"
	FieldInternetServiceType   = "internet_service_type"
	FieldPaymentType           = "payment_type"
)

// RawFields lists the data dictionary in source column order.
var RawFields = []string{
	FieldCustomerID, FieldGender, FieldSeniorCitizen, FieldPartner, FieldDependents,
	FieldTenure, FieldPhoneService, FieldMultipleLines, FieldInternetServiceTypeID,
	FieldOnlineSecurity, FieldOnlineBackup, FieldDeviceProtection, FieldTechSupport,
	FieldStreamingTV, FieldStreamingMovies, FieldContractTypeID, FieldPaperlessBilling,
	FieldPaymentTypeID, FieldMonthlyCharges, FieldTotalCharges, FieldChurn,
	FieldContractType, FieldInternetServiceType, FieldPaymentType,
}

// RawRecord is one customer row as received from a source. Every value is
// text; sources convert typed database values to their string form.
type RawRecord map[string]string

// ID returns the customer id, or "" when the key is missing.
func (r RawRecord) ID() string {
	return r[FieldCustomerID]
}

// Record is a normalized, validated customer row (a Clean Record).
type Record struct {
	CustomerID string

	Gender        string
	SeniorCitizen bool
	Partner       bool
	Dependents    bool

	TenureMonths   int
	MonthlyCharges decimal.Decimal
	TotalCharges   decimal.Decimal

	ContractType        string
	PaymentType         string
	InternetServiceType string

	PhoneService     bool
	MultipleLines    bool
	OnlineSecurity   bool
	OnlineBackup     bool
	DeviceProtection bool
	TechSupport      bool
	StreamingTV      bool
	StreamingMovies  bool
	PaperlessBilling bool

	// Churned is nil for records awaiting a prediction.
	Churned *bool
}

// Labeled reports whether the record carries a churn label.
func (r Record) Labeled() bool {
	return r.Churned != nil
}

// Categorical returns the value of a categorical field by its encoded field
// name. The second result is false for names that are not categorical.
func (r Record) Categorical(field string) (string, bool) {
	switch field {
	case "contract_type":
		return r.ContractType, true
	case "payment_type":
		return r.PaymentType, true
	case "internet_service_type":
		return r.InternetServiceType, true
	case "gender":
		return r.Gender, true
	default:
		return "", false
	}
}

// Flag names in the order they are encoded.
var FlagNames = []string{
	"senior_citizen", "partner", "dependents", "phone_service", "multiple_lines",
	"online_security", "online_backup", "device_protection", "tech_support",
	"streaming_tv", "streaming_movies", "paperless_billing",
}

// Flags returns the boolean fields in FlagNames order.
func (r Record) Flags() []bool {
	return []bool{
		r.SeniorCitizen, r.Partner, r.Dependents, r.PhoneService, r.MultipleLines,
		r.OnlineSecurity, r.OnlineBackup, r.DeviceProtection, r.TechSupport,
		r.StreamingTV, r.StreamingMovies, r.PaperlessBilling,
	}
}

// Bool returns a pointer to b, for building labels.
func Bool(b bool) *bool {
	return &b
}
