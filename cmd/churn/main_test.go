package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	errors.SetWarningHandler(func(error) {})
	os.Exit(m.Run())
}

// sampleRows builds n raw rows; short-tenure month-to-month customers churn
// and the last unlabeled rows carry no churn value.
func sampleRows(n, unlabeled int) []dataset.RawRecord {
	contracts := []string{"Month-to-month", "Month-to-month", "One year", "Two year"}
	payments := []string{"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"}
	internet := []string{"DSL", "Fiber optic", "None"}

	rows := make([]dataset.RawRecord, n)
	for i := range rows {
		tenure := 1 + (i*11)%72
		monthly := 25 + float64((i*9)%75)
		contract := contracts[i%len(contracts)]
		churn := "No"
		if contract == "Month-to-month" && tenure <= 24 {
			churn = "Yes"
		}
		if i >= n-unlabeled {
			churn = ""
		}
		rows[i] = dataset.RawRecord{
			dataset.FieldCustomerID:            fmt.Sprintf("%04d-TEST", i),
			dataset.FieldGender:                []string{"Female", "Male"}[i%2],
			dataset.FieldSeniorCitizen:         fmt.Sprint(i % 3 / 2),
			dataset.FieldPartner:               []string{"Yes", "No"}[i%2],
			dataset.FieldDependents:            []string{"No", "Yes"}[i%2],
			dataset.FieldTenure:                fmt.Sprint(tenure),
			dataset.FieldPhoneService:          "Yes",
			dataset.FieldMultipleLines:         "No",
			dataset.FieldInternetServiceType:   internet[i%len(internet)],
			dataset.FieldOnlineSecurity:        "No",
			dataset.FieldOnlineBackup:          "No",
			dataset.FieldDeviceProtection:      "No",
			dataset.FieldTechSupport:           []string{"Yes", "No"}[i%2],
			dataset.FieldStreamingTV:           "No",
			dataset.FieldStreamingMovies:       "No",
			dataset.FieldContractType:          contract,
			dataset.FieldPaperlessBilling:      "Yes",
			dataset.FieldPaymentType:           payments[i%len(payments)],
			dataset.FieldMonthlyCharges:        fmt.Sprintf("%.2f", monthly),
			dataset.FieldTotalCharges:          fmt.Sprintf("%.2f", float64(tenure)*monthly),
			dataset.FieldChurn:                 churn,
			dataset.FieldContractTypeID:        "1",
			dataset.FieldInternetServiceTypeID: "1",
			dataset.FieldPaymentTypeID:         "1",
		}
	}
	return rows
}

type workspace struct {
	dir    string
	data   string
	config string
	out    string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		data:   filepath.Join(dir, "telco.csv"),
		config: filepath.Join(dir, "churn.json"),
		out:    filepath.Join(dir, "out", "predictions.csv"),
	}
	require.NoError(t, dataset.WriteCSVFile(w.data, sampleRows(300, 15)))

	conf := fmt.Sprintf(`{
  "source": {"kind": "csv", "path": %q},
  "predictions": {"path": %q, "scope": "unlabeled"},
  "models": [
    {"id": "tree", "family": "decision_tree", "params": {"max_depth": 4, "random_state": 24}},
    {"id": "logit", "family": "logistic_regression", "params": {"max_iter": 200}}
  ]
}`, w.data, w.out)
	require.NoError(t, os.WriteFile(w.config, []byte(conf), 0o644))
	return w
}

// execute runs the root command in-process. Flag variables are package
// globals, so every flag a test relies on is passed explicitly.
func (w *workspace) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	base := []string{
		"--config", w.config,
		"--log-level", "error",
		"--env-file", filepath.Join(w.dir, "missing.env"),
	}
	rootCmd.SetArgs(append(args, base...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPrepareCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.execute(t, "prepare")
	require.NoError(t, err)
	assert.Contains(t, out, "raw records:          300")
	assert.Contains(t, out, "retained:             300")
	assert.Contains(t, out, "unlabeled:            15")
	assert.Contains(t, out, "train/validate/test:")
}

func TestCompareCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.execute(t, "compare")
	require.NoError(t, err)
	assert.Contains(t, out, "recall")
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "tree")
	assert.Contains(t, out, "logit")
	assert.Contains(t, out, "selected: ")
	assert.NotContains(t, out, "failed:")
}

func TestRunCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.execute(t, "run", "--out", "")
	require.NoError(t, err)
	assert.Contains(t, out, "test (")
	assert.Contains(t, out, "wrote 15 predictions (unlabeled) to "+w.out)

	b, err := os.ReadFile(w.out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 16)
	assert.Equal(t, "customer_id,probability,predicted_churn", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0285-TEST,"), lines[1])
}

func TestRunCommandOutFlag(t *testing.T) {
	w := newWorkspace(t)
	custom := filepath.Join(w.dir, "custom.csv")

	_, err := w.execute(t, "run", "--out", custom)
	require.NoError(t, err)
	assert.FileExists(t, custom)
	assert.NoFileExists(t, w.out)
}

func TestAcquireCommand(t *testing.T) {
	w := newWorkspace(t)
	snapshot := filepath.Join(w.dir, "snapshot", "telco.csv")

	out, err := w.execute(t, "acquire", "--out", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 300 rows to "+snapshot)

	f, err := os.Open(snapshot)
	require.NoError(t, err)
	defer f.Close()
	rows, err := dataset.ReadCSV(f)
	require.NoError(t, err)
	assert.Len(t, rows, 300)
}

func TestAcquireCommandNeedsDestination(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.execute(t, "acquire", "--out", "")
	require.Error(t, err)
	var cfgErr *errors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "out", cfgErr.Option)
	assert.NoFileExists(t, "telco.csv", "csv configs carry no cache path to fall back on")
}

func TestExploreCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.execute(t, "explore")
	require.NoError(t, err)
	assert.Contains(t, out, "labeled 285")
	assert.Contains(t, out, "monthly_charges")
	assert.Contains(t, out, "contract_type")
	assert.Contains(t, out, "month-to-month")
	assert.Contains(t, out, "tech support vs churn:")
}

func TestMissingConfig(t *testing.T) {
	w := newWorkspace(t)
	w.config = filepath.Join(w.dir, "nope.json")

	_, err := w.execute(t, "prepare")
	require.Error(t, err)
}
