package api

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestArchive(t *testing.T, manifestJSON string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.tar")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	if manifestJSON != "" {
		hdr := &tar.Header{Name: "manifest.json", Mode: 0o644, Size: int64(len(manifestJSON))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(manifestJSON))
		require.NoError(t, err)
	}
	layerHdr := &tar.Header{Name: "layer.tar", Mode: 0o644, Size: 4}
	require.NoError(t, tw.WriteHeader(layerHdr))
	_, err = tw.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	return path
}

func TestInspectArchive_ExtractsRepoNameFromManifest(t *testing.T) {
	path := writeTestArchive(t, `[{"RepoTags":["myapp:v1.2.3"]}]`)

	digest, repoName, err := inspectArchive(path)
	require.NoError(t, err)
	assert.Equal(t, "myapp", repoName)
	assert.Len(t, digest, 64)
}

func TestInspectArchive_MissingManifestFallsBackToEmptyName(t *testing.T) {
	path := writeTestArchive(t, "")

	digest, repoName, err := inspectArchive(path)
	require.NoError(t, err)
	assert.Empty(t, repoName)
	assert.Len(t, digest, 64)
}

func TestInspectArchive_MalformedManifestFallsBackToEmptyName(t *testing.T) {
	path := writeTestArchive(t, `not valid json`)

	digest, repoName, err := inspectArchive(path)
	require.NoError(t, err)
	assert.Empty(t, repoName)
	assert.Len(t, digest, 64)
}

func TestInspectArchive_DigestMatchesFileContents(t *testing.T) {
	path := writeTestArchive(t, `[{"RepoTags":["nginx:latest"]}]`)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want := sha256.Sum256(raw)

	digest, _, err := inspectArchive(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
}

func TestRepoTagToName(t *testing.T) {
	assert.Equal(t, "myapp", repoTagToName("myapp:v1.2.3"))
	assert.Equal(t, "localhost:5000/myapp", repoTagToName("localhost:5000/myapp:latest"))
	assert.Equal(t, "untagged", repoTagToName("untagged"))
}
