package fingerprint

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticID/internal/testutil"
	"github.com/himanishpuri/AcousticID/pkg/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		wantErr bool
		wantFP  string
		wantDur float64
	}{
		{"float duration", `{"duration": 215.47, "fingerprint": "AQADtEmUaEkS"}`, false, "AQADtEmUaEkS", 215.47},
		{"integer duration", `{"duration": 30, "fingerprint": "AQAA"}`, false, "AQAA", 30},
		{"not json", `DURATION=30\nFINGERPRINT=AQAA`, true, "", 0},
		{"empty output", ``, true, "", 0},
		{"missing fingerprint", `{"duration": 30}`, true, "", 0},
		{"empty fingerprint", `{"duration": 30, "fingerprint": "  "}`, true, "", 0},
		{"fingerprint wrong type", `{"duration": 30, "fingerprint": 12}`, true, "", 0},
		{"missing duration", `{"fingerprint": "AQAA"}`, true, "", 0},
		{"zero duration", `{"duration": 0, "fingerprint": "AQAA"}`, true, "", 0},
		{"string duration", `{"duration": "30", "fingerprint": "AQAA"}`, true, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse([]byte(tt.out))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", res)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if res.Fingerprint != tt.wantFP {
				t.Errorf("Fingerprint = %q, want %q", res.Fingerprint, tt.wantFP)
			}
			if res.DurationSeconds != tt.wantDur {
				t.Errorf("DurationSeconds = %v, want %v", res.DurationSeconds, tt.wantDur)
			}
		})
	}
}

func TestGenerateSuccess(t *testing.T) {
	bin, argsPath := testutil.FakeFpcalc(t, `{"duration": 12.5, "fingerprint": "AQAAfake"}`, "", 0)
	gen := NewGenerator(bin, 5*time.Second)

	path := filepath.Join(t.TempDir(), `123-a "quoted" $(name); x.mp3`)
	res, err := gen.Generate(context.Background(), path)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Fingerprint != "AQAAfake" || res.DurationSeconds != 12.5 {
		t.Errorf("unexpected result: %+v", res)
	}

	args := testutil.ReadArgs(t, argsPath)
	if len(args) != 2 || args[0] != "-json" || args[1] != path {
		t.Errorf("fpcalc should receive [-json <path>] verbatim, got %q", args)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		stderr  string
		exit    int
		inCause string
	}{
		{"non-zero exit", "", "ERROR: Could not open the input file", 2, "Could not open the input file"},
		{"invalid json", "not json at all", "", 0, "not valid JSON"},
		{"missing fingerprint", `{"duration": 10}`, "", 0, "no fingerprint"},
		{"missing duration", `{"fingerprint": "AQAA"}`, "", 0, "no duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, _ := testutil.FakeFpcalc(t, tt.stdout, tt.stderr, tt.exit)
			gen := NewGenerator(bin, 5*time.Second)

			_, err := gen.Generate(context.Background(), "/tmp/does-not-matter.mp3")
			if apperr.KindOf(err) != apperr.FingerprintError {
				t.Fatalf("expected FingerprintError, got %v", err)
			}
			if apperr.MessageOf(err) != "Could not generate audio fingerprint" {
				t.Errorf("unexpected public message %q", apperr.MessageOf(err))
			}
			if !strings.Contains(apperr.Cause(err), tt.inCause) {
				t.Errorf("cause %q should mention %q", apperr.Cause(err), tt.inCause)
			}
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	gen := NewGenerator(testutil.SlowFpcalc(t), 200*time.Millisecond)

	start := time.Now()
	_, err := gen.Generate(context.Background(), "/tmp/slow.mp3")
	if apperr.KindOf(err) != apperr.FingerprintError {
		t.Fatalf("expected FingerprintError on timeout, got %v", err)
	}
	if !strings.Contains(apperr.Cause(err), "timed out") {
		t.Errorf("cause should mention the timeout: %q", apperr.Cause(err))
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout was not enforced, took %s", elapsed)
	}
}

func TestGenerateMissingBinary(t *testing.T) {
	gen := NewGenerator(filepath.Join(t.TempDir(), "no-such-fpcalc"), time.Second)

	_, err := gen.Generate(context.Background(), "/tmp/x.mp3")
	if apperr.KindOf(err) != apperr.FingerprintError {
		t.Fatalf("expected FingerprintError, got %v", err)
	}
}

// TestGenerateRealFpcalc runs the real tool when it is installed.
func TestGenerateRealFpcalc(t *testing.T) {
	bin, err := exec.LookPath("fpcalc")
	if err != nil {
		t.Skip("fpcalc not installed")
	}

	path := testutil.WriteWAV(t, t.TempDir(), "tone.wav", 12)
	res, err := NewGenerator(bin, 0).Generate(context.Background(), path)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Fingerprint == "" || res.DurationSeconds < 11 {
		t.Errorf("unexpected result: %+v", res)
	}
}
