package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/churn/config"
	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/harness"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []dataset.RawRecord
	err     error
	calls   int
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]dataset.RawRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]dataset.RawRecord, len(f.records))
	for i, r := range f.records {
		cp := make(dataset.RawRecord, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}

var (
	contracts = []string{"Month-to-month", "Month-to-month", "One year", "Two year"}
	payments  = []string{"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"}
	internet  = []string{"DSL", "Fiber optic", "None"}
)

// telcoRows builds n raw rows in source spelling. Short-tenure
// month-to-month customers churn. The first blank rows have no
// total_charges and the next unlabeled rows have no churn value.
func telcoRows(n, blank, unlabeled int) []dataset.RawRecord {
	rows := make([]dataset.RawRecord, n)
	for i := range rows {
		tenure := 1 + (i*13)%72
		monthly := 20 + float64((i*7)%80) + 0.25
		contract := contracts[i%len(contracts)]
		churn := "No"
		if contract == "Month-to-month" && tenure <= 24 {
			churn = "Yes"
		}
		total := fmt.Sprintf("%.2f", float64(tenure)*monthly)
		switch {
		case i < blank:
			total = " "
		case i < blank+unlabeled:
			churn = ""
		}
		rows[i] = dataset.RawRecord{
			dataset.FieldCustomerID:            fmt.Sprintf("%04d-CUST", i),
			dataset.FieldGender:                []string{"Female", "Male"}[i%2],
			dataset.FieldSeniorCitizen:         fmt.Sprint(i % 5 / 4),
			dataset.FieldPartner:               []string{"Yes", "No"}[i%2],
			dataset.FieldDependents:            []string{"No", "Yes", "No"}[i%3],
			dataset.FieldTenure:                fmt.Sprint(tenure),
			dataset.FieldPhoneService:          "Yes",
			dataset.FieldMultipleLines:         "No",
			dataset.FieldInternetServiceType:   internet[i%len(internet)],
			dataset.FieldOnlineSecurity:        "No",
			dataset.FieldOnlineBackup:          "Yes",
			dataset.FieldDeviceProtection:      "No",
			dataset.FieldTechSupport:           []string{"No", "Yes"}[i%2],
			dataset.FieldStreamingTV:           "No",
			dataset.FieldStreamingMovies:       "No",
			dataset.FieldContractType:          contract,
			dataset.FieldPaperlessBilling:      "Yes",
			dataset.FieldPaymentType:           payments[i%len(payments)],
			dataset.FieldMonthlyCharges:        fmt.Sprintf("%.2f", monthly),
			dataset.FieldTotalCharges:          total,
			dataset.FieldChurn:                 churn,
			dataset.FieldContractTypeID:        "1",
			dataset.FieldInternetServiceTypeID: "1",
			dataset.FieldPaymentTypeID:         "1",
		}
	}
	return rows
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Source = config.SourceConfig{Kind: "csv", Path: "unused.csv"}
	cfg.Models = []harness.ModelConfig{
		{ID: "dt", Family: harness.FamilyDecisionTree, Params: harness.Params{"max_depth": 5.0, "random_state": 24.0}},
		{ID: "knn", Family: harness.FamilyKNN, Params: harness.Params{"n_neighbors": 10.0}},
		{ID: "lr", Family: harness.FamilyLogisticRegression, Params: harness.Params{"max_iter": 300.0}},
	}
	return cfg
}

func quietLogs(t *testing.T) {
	t.Helper()
	provider, _ := log.NewTestLoggerProvider(log.LevelWarn)
	log.SetProvider(provider)
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
}

func TestRun(t *testing.T) {
	quietLogs(t)
	src := &fakeSource{records: telcoRows(400, 4, 20)}

	res, err := Run(context.Background(), testConfig(), src)
	require.NoError(t, err)

	assert.Equal(t, 400, res.Report.Raw)
	assert.Equal(t, 4, res.Report.ValidationDropped)
	assert.Equal(t, 396, res.Report.Retained)
	assert.Equal(t, 396, res.Encoded.Len())
	assert.Equal(t, 20, res.Unlabeled.Len())

	train, validate, test := res.Partition.Sizes()
	assert.Equal(t, 376, train+validate+test)
	assert.InDelta(t, 0.56*376, float64(train), 2)
	assert.InDelta(t, 0.20*376, float64(test), 2)

	require.NotNil(t, res.Test)
	assert.Equal(t, test, res.Test.Samples)
	sel, err := res.Comparison.Selected()
	require.NoError(t, err)
	assert.Equal(t, sel.ID, res.Test.ModelID)
	assert.True(t, sel.Useful, "selected model should beat the majority baseline")

	require.Len(t, res.Predictions, 20)
	assert.Equal(t, res.Unlabeled.IDs()[0], res.Predictions[0].CustomerID)
	assert.NotEmpty(t, res.RunID)
}

func TestRunPredictsTestScope(t *testing.T) {
	quietLogs(t)
	cfg := testConfig()
	cfg.Predictions.Scope = config.ScopeTest

	res, err := Run(context.Background(), cfg, &fakeSource{records: telcoRows(300, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Unlabeled.Len())
	assert.Len(t, res.Predictions, res.Partition.Test.Len())
}

func TestRunIsDeterministic(t *testing.T) {
	quietLogs(t)
	rows := telcoRows(300, 2, 5)

	a, err := Run(context.Background(), testConfig(), &fakeSource{records: rows})
	require.NoError(t, err)
	b, err := Run(context.Background(), testConfig(), &fakeSource{records: rows})
	require.NoError(t, err)

	assert.Equal(t, a.Partition.Train.IDs(), b.Partition.Train.IDs())
	assert.Equal(t, a.Partition.Validate.IDs(), b.Partition.Validate.IDs())
	assert.Equal(t, a.Partition.Test.IDs(), b.Partition.Test.IDs())
	assert.Equal(t, a.Test.ModelID, b.Test.ModelID)
	assert.Equal(t, a.Test.Scores, b.Test.Scores)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPrepareRejectsConfigBeforeFetch(t *testing.T) {
	quietLogs(t)
	cfg := testConfig()
	cfg.Split.Train = 0.7
	src := &fakeSource{records: telcoRows(50, 0, 0)}

	_, err := Prepare(context.Background(), cfg, src)
	var ce *errors.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 0, src.calls)
}

func TestPrepareUnknownCategoryHalts(t *testing.T) {
	quietLogs(t)
	rows := telcoRows(50, 0, 0)
	rows[10][dataset.FieldContractType] = "Lifetime"

	_, err := Prepare(context.Background(), testConfig(), &fakeSource{records: rows})
	var uce *errors.UnknownCategoryError
	require.True(t, errors.As(err, &uce), "got %v", err)
	assert.Equal(t, "contract_type", uce.Field)
	assert.Equal(t, "Lifetime", uce.Value)
}

func TestPrepareFetchError(t *testing.T) {
	quietLogs(t)
	_, err := Prepare(context.Background(), testConfig(), &fakeSource{err: errors.New("connection refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunAllModelsFail(t *testing.T) {
	quietLogs(t)
	cfg := testConfig()
	cfg.Models = []harness.ModelConfig{{ID: "dt", Family: harness.FamilyDecisionTree, Params: harness.Params{"max_depth": -1.0}}}

	res, err := Run(context.Background(), cfg, &fakeSource{records: telcoRows(100, 0, 0)})
	assert.True(t, errors.Is(err, errors.ErrNoSelection), "got %v", err)
	require.NotNil(t, res)
	assert.Len(t, res.Comparison.Failed(), 1)
	assert.Nil(t, res.Test)
}

func TestWritePredictions(t *testing.T) {
	var buf bytes.Buffer
	err := WritePredictions(&buf, []harness.Prediction{
		{CustomerID: "0001-A", Probability: 0.8, Churn: true},
		{CustomerID: "0002-B", Probability: 0.1, Churn: false},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "customer_id,probability,predicted_churn", lines[0])
	assert.Equal(t, "0001-A,0.8,true", lines[1])
	assert.Equal(t, "0002-B,0.1,false", lines[2])

	buf.Reset()
	require.NoError(t, WritePredictions(&buf, nil))
	assert.Equal(t, "customer_id,probability,predicted_churn", strings.TrimSpace(buf.String()))
}

func TestWritePredictionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "predictions.csv")
	require.NoError(t, WritePredictionsFile(path, []harness.Prediction{{CustomerID: "x", Churn: true}}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "x,0,true")
}
