package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	churnerrors "github.com/YuminosukeSato/churn/pkg/errors"
)

func TestTestLoggerLevels(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelInfo)

	testLogger.Debug("hidden")
	testLogger.Info("split done", TrainSizeKey, 3937)
	testLogger.Warn("few positives", "stratum", "1")
	testLogger.Error("fit failed", fmt.Errorf("max_depth must be positive"), EstimatorIDKey, "dt-bad")

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty string")
	}
	if testLogger.ContainsMessage("hidden") {
		t.Error("Debug message should not appear when level is Info")
	}
	if !testLogger.ContainsField(TrainSizeKey, 3937.0) {
		t.Error("Expected split.train=3937")
	}
	if !testLogger.ContainsField(ErrAttrKey, "max_depth must be positive") {
		t.Error("Leading error should be logged under the error key")
	}
	if !testLogger.ContainsField(EstimatorIDKey, "dt-bad") {
		t.Error("Fields after a leading error should stay paired")
	}

	ctx := context.Background()
	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}
	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("Logger should be enabled for Error level")
	}
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	runLogger := testLogger.With(RunIDKey, "run-1", ComponentKey, "pipeline")
	runLogger.Info("prepared", RetainedKey, 7032)

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}

	expected := map[string]interface{}{
		RunIDKey:     "run-1",
		ComponentKey: "pipeline",
		RetainedKey:  7032.0,
		"level":      "INFO",
	}
	for key, want := range expected {
		if got := entries[0][key]; got != want {
			t.Errorf("Field %s: expected %v, got %v", key, want, got)
		}
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo).With(ComponentKey, "harness")

	logger.Debug("hidden")
	logger.Info("fit completed", EstimatorIDKey, "rf-100", RecallKey, 0.5)
	logger.Error("fit failed", churnerrors.NewValueError("fit", "bad params"), EstimatorIDKey, "knn-0")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info["level"] != "info" || info[ComponentKey] != "harness" || info[EstimatorIDKey] != "rf-100" {
		t.Errorf("unexpected info entry: %v", info)
	}
	if _, ok := info["time"]; !ok {
		t.Error("Expected timestamp field")
	}

	var errEntry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &errEntry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if errEntry[ErrAttrKey] != "churn: fit: bad params" {
		t.Errorf("error = %v", errEntry[ErrAttrKey])
	}
	if errEntry[EstimatorIDKey] != "knn-0" {
		t.Errorf("estimator.id = %v", errEntry[EstimatorIDKey])
	}

	ctx := context.Background()
	if logger.Enabled(ctx, LevelDebug) || !logger.Enabled(ctx, LevelWarn) {
		t.Error("Enabled does not match the configured level")
	}
}

func TestZerologLoggerObjectField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Warn("metric undefined", "warning", churnerrors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	obj, ok := entry["warning"].(map[string]interface{})
	if !ok {
		t.Fatalf("warning should be an object, got %T", entry["warning"])
	}
	if obj["metric"] != "precision" {
		t.Errorf("metric = %v", obj["metric"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warn", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "trace", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupLogger("info", &buf); err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	defer churnerrors.SetZerologWarnFunc(nil)

	churnerrors.Warn(churnerrors.NewConvergenceWarning("LogisticRegression", 100, ""))

	if !strings.Contains(buf.String(), "ConvergenceWarning") {
		t.Errorf("warning not routed to zerolog: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"`+ComponentKey+`":"warnings"`) {
		t.Errorf("warning should carry the component name: %s", buf.String())
	}
}

func TestProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	GetLoggerWithName("prepare").Info("normalized")

	if !strings.Contains(buffer.String(), `"`+ComponentKey+`":"prepare"`) {
		t.Errorf("component name not found: %s", buffer.String())
	}

	provider.SetLevel(LevelError)
	GetLogger().Info("dropped")
	if strings.Contains(buffer.String(), "dropped") {
		t.Error("SetLevel should filter lower levels")
	}
}
