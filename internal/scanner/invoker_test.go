package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
)

// fakeBinary writes a short shell script standing in for the trivy binary
// and returns its path, so Invoke can be exercised against a real child
// process without depending on trivy being installed.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-trivy")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestInvoke_SuccessParsesOutputFile(t *testing.T) {
	bin := fakeBinary(t, `
# the --output path is the 5th argument
out="$5"
cat > "$out" <<'EOF'
{"SchemaVersion": 2, "Results": []}
EOF
exit 0
`)
	inv := New(bin, t.TempDir())
	outPath := filepath.Join(t.TempDir(), "report.json")

	report, err := inv.Invoke(context.Background(), "nginx:latest", outPath, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SchemaVersion)
}

func TestInvoke_SuccessButMissingOutputFileIsTrivyError(t *testing.T) {
	bin := fakeBinary(t, `exit 0`)
	inv := New(bin, t.TempDir())
	outPath := filepath.Join(t.TempDir(), "never-written.json")

	_, err := inv.Invoke(context.Background(), "nginx:latest", outPath, 5*time.Second)
	require.Error(t, err)
	se, ok := scanerr.As(err)
	require.True(t, ok)
	assert.Equal(t, scanerr.CodeTrivyError, se.Code)
}

func TestInvoke_ImageNotFoundClassification(t *testing.T) {
	bin := fakeBinary(t, `echo "Error: could not find image" >&2; exit 1`)
	inv := New(bin, t.TempDir())

	_, err := inv.Invoke(context.Background(), "missing:latest", filepath.Join(t.TempDir(), "report.json"), 5*time.Second)
	require.Error(t, err)
	se, ok := scanerr.As(err)
	require.True(t, ok)
	assert.Equal(t, scanerr.CodeImageNotFound, se.Code)
	assert.True(t, se.Permanent)
}

func TestInvoke_UnauthorizedClassification(t *testing.T) {
	bin := fakeBinary(t, `echo "unauthorized: authentication required" >&2; exit 1`)
	inv := New(bin, t.TempDir())

	_, err := inv.Invoke(context.Background(), "private:latest", filepath.Join(t.TempDir(), "report.json"), 5*time.Second)
	require.Error(t, err)
	se, ok := scanerr.As(err)
	require.True(t, ok)
	assert.Equal(t, scanerr.CodePullFailed, se.Code)
	assert.False(t, se.Permanent, "PULL_FAILED is treated as transient even for auth failures")
}

func TestInvoke_RateLimitClassification(t *testing.T) {
	bin := fakeBinary(t, `echo "toomanyrequests: rate limit exceeded" >&2; exit 1`)
	inv := New(bin, t.TempDir())

	_, err := inv.Invoke(context.Background(), "busy:latest", filepath.Join(t.TempDir(), "report.json"), 5*time.Second)
	require.Error(t, err)
	se, ok := scanerr.As(err)
	require.True(t, ok)
	assert.Equal(t, scanerr.CodePullFailed, se.Code)
}

func TestInvoke_UnclassifiedNonZeroExitIsTrivyError(t *testing.T) {
	bin := fakeBinary(t, `echo "something went sideways" >&2; exit 17`)
	inv := New(bin, t.TempDir())

	_, err := inv.Invoke(context.Background(), "whatever:latest", filepath.Join(t.TempDir(), "report.json"), 5*time.Second)
	require.Error(t, err)
	se, ok := scanerr.As(err)
	require.True(t, ok)
	assert.Equal(t, scanerr.CodeTrivyError, se.Code)
}

// A scanner process that outlives its deadline and ignores SIGTERM must
// still be forcibly killed and classified TIMEOUT within timeout+5s.
func TestInvoke_TimeoutForciblyTerminates(t *testing.T) {
	bin := fakeBinary(t, `
trap '' TERM
sleep 10
`)
	inv := New(bin, t.TempDir())

	start := time.Now()
	_, err := inv.Invoke(context.Background(), "slow:latest", filepath.Join(t.TempDir(), "report.json"), 1*time.Second)
	elapsed := time.Since(start)

	require.Error(t, err)
	se, ok := scanerr.As(err)
	require.True(t, ok)
	assert.Equal(t, scanerr.CodeTimeout, se.Code)
	assert.LessOrEqual(t, elapsed, 6*time.Second, "must be killed within timeout+5s")
}

func TestInvoke_EnvironmentCarriesNoColorAndCacheDir(t *testing.T) {
	cacheDir := t.TempDir()
	bin := fakeBinary(t, `
out="$5"
: > "$out.env"
env > "$out.env"
echo '{"SchemaVersion": 2}' > "$out"
`)
	inv := New(bin, cacheDir)
	outPath := filepath.Join(t.TempDir(), "report.json")

	_, err := inv.Invoke(context.Background(), "nginx:latest", outPath, 5*time.Second)
	require.NoError(t, err)

	envDump, err := os.ReadFile(outPath + ".env")
	require.NoError(t, err)
	assert.Contains(t, string(envDump), "NO_COLOR=1")
	assert.Contains(t, string(envDump), "TRIVY_CACHE_DIR="+cacheDir)
}

func TestInvoke_StartFailureIsInternalError(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir())
	_, err := inv.Invoke(context.Background(), "nginx:latest", filepath.Join(t.TempDir(), "report.json"), 2*time.Second)
	require.Error(t, err)
	var se *scanerr.ScanError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, scanerr.CodeInternal, se.Code)
}
