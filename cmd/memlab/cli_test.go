package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memlab/internal/logging"
)

// testWorkspace points the global flags at a fresh directory.
func testWorkspace(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	logging.UseCore(zap.NewNop())

	ws := t.TempDir()
	workdir = ws
	configPath = filepath.Join(ws, "absent.yaml")
	weightsPath = ""
	verbose = true // keep the nop core; loadSetup must not rebuild it
	t.Cleanup(func() {
		workdir = ""
		configPath = "memlab.yaml"
		verbose = false
	})
	return ws
}

// newRunFlags builds a disposable command carrying run's flag set, so
// tests never mutate the shared runCmd state.
func newRunFlags() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("devices", nil, "")
	cmd.Flags().String("policy", "", "")
	cmd.Flags().Bool("spool", false, "")
	cmd.Flags().Bool("resume", false, "")
	cmd.Flags().Bool("confirm-final", false, "")
	cmd.Flags().Int64("seed", 1, "")
	return cmd
}

func TestParseDeviceSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantID  string
		wantErr bool
	}{
		{"W1", "W1", false},
		{"W2:capacitor", "W2", false},
		{" W3:resistor ", "W3", false},
		{"W4:warp-core", "", true},
		{":memristor", "", true},
	}
	for _, tc := range tests {
		id, model, err := parseDeviceSpec(tc.spec, 1)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.spec, err)
			continue
		}
		if id != tc.wantID || model == nil {
			t.Errorf("%q: got id=%q model=%v", tc.spec, id, model)
		}
	}
}

func TestRunCampaignEndToEnd(t *testing.T) {
	ws := testWorkspace(t)

	cmd := newRunFlags()
	if err := cmd.Flags().Set("devices", "W1:memristor,W2:resistor"); err != nil {
		t.Fatal(err)
	}
	output := captureOutput(t, func() {
		if err := runCampaign(cmd, nil); err != nil {
			t.Errorf("runCampaign failed: %v", err)
		}
	})
	if !strings.Contains(output, "completed") {
		t.Errorf("expected a completed campaign, got:\n%s", output)
	}
	if !strings.Contains(output, "2 total, 2 terminal") {
		t.Errorf("expected both devices terminal, got:\n%s", output)
	}
	if _, err := os.Stat(filepath.Join(ws, "data", "memlab.db")); err != nil {
		t.Errorf("registry store missing: %v", err)
	}

	// a re-run must refuse to clobber the population
	cmd = newRunFlags()
	if err := runCampaign(cmd, nil); err == nil || !strings.Contains(err.Error(), "--resume") {
		t.Errorf("expected a resume hint, got %v", err)
	}

	// status and report read the persisted snapshot
	output = captureOutput(t, func() {
		if err := runStatus(&cobra.Command{}, nil); err != nil {
			t.Errorf("runStatus failed: %v", err)
		}
	})
	if !strings.Contains(output, "status:  completed") {
		t.Errorf("status must show the finished campaign, got:\n%s", output)
	}

	reportFlags := &cobra.Command{}
	reportFlags.Flags().Bool("json", false, "")
	output = captureOutput(t, func() {
		if err := runReport(reportFlags, nil); err != nil {
			t.Errorf("runReport failed: %v", err)
		}
	})
	if !strings.Contains(output, "W1") || !strings.Contains(output, "high_quality_done") {
		t.Errorf("report must show W1 finishing high quality, got:\n%s", output)
	}
	if !strings.Contains(output, "skipped") {
		t.Errorf("report must show the resistor skipped, got:\n%s", output)
	}
}

func TestRunConfirmFinalExecutes(t *testing.T) {
	ws := testWorkspace(t)

	policyPath := filepath.Join(ws, "policy.yaml")
	doc := "final_test:\n  enabled: true\n  selection_mode: top_x\n  top_x_count: 2\n  min_score_threshold: 80\n  custom_sweep_name: endurance-final\n"
	if err := os.WriteFile(policyPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := newRunFlags()
	_ = cmd.Flags().Set("devices", "W1:memristor,W2:resistor")
	_ = cmd.Flags().Set("policy", policyPath)
	_ = cmd.Flags().Set("confirm-final", "true")

	output := captureOutput(t, func() {
		if err := runCampaign(cmd, nil); err != nil {
			t.Errorf("runCampaign failed: %v", err)
		}
	})
	if !strings.Contains(output, "final selection") {
		t.Errorf("expected the selection plan, got:\n%s", output)
	}
	if !strings.Contains(output, "complete on 1") {
		t.Errorf("expected the final test to run on W1 only, got:\n%s", output)
	}

	// the dry-run view agrees afterwards
	selectFlags := &cobra.Command{}
	selectFlags.Flags().Bool("json", false, "")
	output = captureOutput(t, func() {
		if err := runSelect(selectFlags, nil); err != nil {
			t.Errorf("runSelect failed: %v", err)
		}
	})
	if !strings.Contains(output, "final_done") {
		t.Errorf("select must show W1 already done, got:\n%s", output)
	}

	// without --confirm-final nothing would have executed
	if strings.Contains(output, "complete on") {
		t.Errorf("select must stay a dry run, got:\n%s", output)
	}
}

func TestSimulateThenClassify(t *testing.T) {
	ws := testWorkspace(t)

	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("devices", nil, "")
	cmd.Flags().String("out", "", "")
	cmd.Flags().String("test", "", "")
	cmd.Flags().Int64("seed", 1, "")
	_ = cmd.Flags().Set("devices", "S1:memristor")

	output := captureOutput(t, func() {
		if err := runSimulate(cmd, nil); err != nil {
			t.Errorf("runSimulate failed: %v", err)
		}
	})
	path := filepath.Join(ws, "spool", "S1__iv-quick.json")
	if !strings.Contains(output, path) {
		t.Errorf("expected the spool path in output, got:\n%s", output)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("spool file missing: %v", err)
	}

	output = captureOutput(t, func() {
		if err := runClassify(&cobra.Command{}, []string{path}); err != nil {
			t.Errorf("runClassify failed: %v", err)
		}
	})
	if !strings.Contains(output, "winner:     memristive") {
		t.Errorf("expected a memristive winner, got:\n%s", output)
	}

	output = captureOutput(t, func() {
		if err := runExtract(&cobra.Command{}, []string{path}); err != nil {
			t.Errorf("runExtract failed: %v", err)
		}
	})
	if !strings.Contains(output, "\"switching_present\": true") {
		t.Errorf("expected switching in the feature record, got:\n%s", output)
	}
}

func TestClassifyManySummarizes(t *testing.T) {
	ws := testWorkspace(t)

	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("devices", nil, "")
	cmd.Flags().String("out", "", "")
	cmd.Flags().String("test", "", "")
	cmd.Flags().Int64("seed", 1, "")
	_ = cmd.Flags().Set("devices", "S1:memristor,S2:resistor")
	captureOutput(t, func() {
		if err := runSimulate(cmd, nil); err != nil {
			t.Errorf("runSimulate failed: %v", err)
		}
	})

	paths := []string{
		filepath.Join(ws, "spool", "S1__iv-quick.json"),
		filepath.Join(ws, "spool", "S2__iv-quick.json"),
	}
	output := captureOutput(t, func() {
		if err := runClassify(&cobra.Command{}, paths); err != nil {
			t.Errorf("runClassify failed: %v", err)
		}
	})

	// one summary row per file, in argument order
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected a header and two rows, got:\n%s", output)
	}
	if !strings.Contains(lines[1], "S1__iv-quick.json") || !strings.Contains(lines[1], "memristive") {
		t.Errorf("expected a memristive row for S1, got: %s", lines[1])
	}
	if !strings.Contains(lines[2], "S2__iv-quick.json") || !strings.Contains(lines[2], "ohmic") {
		t.Errorf("expected an ohmic row for S2, got: %s", lines[2])
	}
}

func TestWeightsCommand(t *testing.T) {
	testWorkspace(t)

	cmd := &cobra.Command{}
	cmd.Flags().Bool("template", false, "")
	output := captureOutput(t, func() {
		if err := runWeights(cmd, nil); err != nil {
			t.Errorf("runWeights failed: %v", err)
		}
	})
	if !strings.Contains(output, "built-in defaults") {
		t.Errorf("expected default provenance, got:\n%s", output)
	}
	if !strings.Contains(output, "memristive") {
		t.Errorf("expected the weight table, got:\n%s", output)
	}

	_ = cmd.Flags().Set("template", "true")
	output = captureOutput(t, func() {
		if err := runWeights(cmd, nil); err != nil {
			t.Errorf("runWeights template failed: %v", err)
		}
	})
	if !strings.Contains(output, "hysteresis") {
		t.Errorf("expected the annotated template, got:\n%s", output)
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = wOut

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	os.Stdout = origOut
	return <-done
}
