package dataset

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `customer_id,gender,tenure,monthly_charges,total_charges,churn,contract_type
7590-VHVEG,Female,1,29.85,29.85,No,Month-to-month
5575-GNVDE,Male,34,56.95,1889.5,No,One year
4472-LVYGI,Female,0,52.55, ,No,Two year
`

type fakeSource struct {
	records []RawRecord
	calls   int
	err     error
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]RawRecord, error) {
	f.calls++
	return f.records, f.err
}

func TestReadCSV(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "7590-VHVEG", records[0].ID())
	assert.Equal(t, "One year", records[1][FieldContractType])
	assert.Equal(t, " ", records[2][FieldTotalCharges], "blank values must reach the filter untouched")
}

func TestCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telco.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	records, err := (&CSVSource{Path: path}).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = (&CSVSource{Path: filepath.Join(t.TempDir(), "missing.csv")}).FetchAll(context.Background())
	assert.Error(t, err)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	in := []RawRecord{
		{FieldCustomerID: "a", FieldTotalCharges: "", "zz_extra": "x"},
		{FieldCustomerID: "b", FieldTotalCharges: "10.5"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	firstLine := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "customer_id,total_charges,zz_extra", firstLine)

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "10.5", out[1][FieldTotalCharges])
	assert.Equal(t, "", out[1]["zz_extra"])
}

func TestCachedSource(t *testing.T) {
	ctx := context.Background()
	cache := filepath.Join(t.TempDir(), "data", "telco.csv")
	primary := &fakeSource{records: []RawRecord{
		{FieldCustomerID: "a", FieldTenure: "1"},
		{FieldCustomerID: "b", FieldTenure: "2"},
	}}
	src := &CachedSource{Primary: primary, CachePath: cache, UseCache: true}

	first, err := src.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, primary.calls)
	assert.FileExists(t, cache)

	second, err := src.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls, "cache should be preferred when present")
	assert.Equal(t, "b", second[1].ID())

	src.UseCache = false
	_, err = src.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls, "UseCache=false always refreshes from primary")
}

func TestCachedSourcePrimaryError(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "telco.csv")
	src := &CachedSource{Primary: &fakeSource{err: errors.New("connection refused")}, CachePath: cache, UseCache: true}

	_, err := src.FetchAll(context.Background())
	require.Error(t, err)
	assert.NoFileExists(t, cache)
}

func TestCachedSourceWithoutPrimary(t *testing.T) {
	src := &CachedSource{CachePath: filepath.Join(t.TempDir(), "none.csv"), UseCache: true}
	_, err := src.FetchAll(context.Background())

	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
