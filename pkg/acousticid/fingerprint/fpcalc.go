// Package fingerprint runs Chromaprint's fpcalc against a stored audio file.
package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticID/pkg/apperr"
	"github.com/himanishpuri/AcousticID/pkg/models"
	"github.com/tidwall/gjson"
)

const (
	DefaultBinary  = "fpcalc"
	DefaultTimeout = 30 * time.Second

	publicMessage = "Could not generate audio fingerprint"
)

// Generator invokes fpcalc once per call. It holds no per-call state and is
// safe for concurrent use.
type Generator struct {
	binary  string
	timeout time.Duration
}

func NewGenerator(binary string, timeout time.Duration) *Generator {
	if binary == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{binary: binary, timeout: timeout}
}

// Generate fingerprints the file at path. Every failure (non-zero exit,
// timeout, unparseable output, missing fields) is a FingerprintError.
func (g *Generator) Generate(ctx context.Context, path string) (*models.FingerprintResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Arguments are passed as a list; the path never goes through a shell.
	cmd := exec.CommandContext(ctx, g.binary, "-json", path)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fail(fmt.Errorf("%s timed out after %s", g.binary, g.timeout))
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fail(fmt.Errorf("%s failed: %w (%s)", g.binary, err, msg))
		}
		return nil, fail(fmt.Errorf("%s failed: %w", g.binary, err))
	}

	res, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, fail(err)
	}
	return res, nil
}

// Parse extracts {fingerprint, duration} from fpcalc's JSON output.
func Parse(out []byte) (*models.FingerprintResult, error) {
	if !gjson.ValidBytes(out) {
		return nil, errors.New("fpcalc output is not valid JSON")
	}

	fp := gjson.GetBytes(out, "fingerprint")
	if fp.Type != gjson.String || strings.TrimSpace(fp.String()) == "" {
		return nil, errors.New("fpcalc output has no fingerprint")
	}

	dur := gjson.GetBytes(out, "duration")
	if dur.Type != gjson.Number || dur.Float() <= 0 {
		return nil, errors.New("fpcalc output has no duration")
	}

	return &models.FingerprintResult{
		Fingerprint:     fp.String(),
		DurationSeconds: dur.Float(),
	}, nil
}

func fail(cause error) error {
	return apperr.Wrap(apperr.FingerprintError, publicMessage, cause)
}
