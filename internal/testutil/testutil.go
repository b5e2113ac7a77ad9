// Package testutil builds fixtures shared by package tests: real WAV files and
// a stand-in for the fpcalc binary.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const fixtureSampleRate = 8000

// WriteWAV writes a mono 16-bit WAV of the given length filled with a quiet
// square wave and returns its path.
func WriteWAV(t *testing.T, dir, name string, seconds int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create WAV fixture: %v", err)
	}
	defer f.Close()

	data := make([]int, fixtureSampleRate*seconds)
	for i := range data {
		if (i/40)%2 == 0 {
			data[i] = 1200
		} else {
			data[i] = -1200
		}
	}

	enc := wav.NewEncoder(f, fixtureSampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: fixtureSampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to encode WAV fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to finalize WAV fixture: %v", err)
	}
	return path
}

// WAVBytes returns the contents of a freshly generated WAV fixture.
func WAVBytes(t *testing.T, seconds int) []byte {
	t.Helper()
	path := WriteWAV(t, t.TempDir(), "fixture.wav", seconds)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read WAV fixture: %v", err)
	}
	return b
}

// FakeFpcalc writes an executable script that prints stdout, writes stderr and
// exits with exitCode. Every argument it receives is appended, one per line,
// to the returned args file. Tests using it are skipped on Windows.
func FakeFpcalc(t *testing.T, stdout, stderr string, exitCode int) (binPath, argsPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake fpcalc requires a POSIX shell")
	}

	dir := t.TempDir()
	binPath = filepath.Join(dir, "fpcalc")
	argsPath = filepath.Join(dir, "args.txt")

	script := fmt.Sprintf(`#!/bin/sh
for a in "$@"; do printf '%%s\n' "$a" >> %s; done
cat <<'__OUT__'
%s
__OUT__
printf '%%s' %s >&2
exit %d
`, shellQuote(argsPath), stdout, shellQuote(stderr), exitCode)

	if err := os.WriteFile(binPath, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write fake fpcalc: %v", err)
	}
	return binPath, argsPath
}

// SlowFpcalc writes a script that sleeps longer than any test timeout.
func SlowFpcalc(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake fpcalc requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fpcalc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatalf("Failed to write slow fpcalc: %v", err)
	}
	return path
}

// ReadArgs returns the arguments recorded by a FakeFpcalc invocation.
func ReadArgs(t *testing.T, argsPath string) []string {
	t.Helper()
	b, err := os.ReadFile(argsPath)
	if err != nil {
		t.Fatalf("Failed to read recorded args: %v", err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
