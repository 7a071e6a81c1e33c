package api

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
)

type dockerSaveManifestEntry struct {
	RepoTags []string `json:"RepoTags"`
}

// submitScanUpload implements POST /api/v1/scan/upload: the archive
// ingestion path. It is gated by config.EnableArchiveUpload, stages the
// upload to local disk under a fresh name, derives image_name/digest from
// the archive itself, and hands off to the Submission Service's archive
// path.
func (gw *Gateway) submitScanUpload(w http.ResponseWriter, r *http.Request) {
	if !gw.Config.EnableArchiveUpload {
		writeError(w, scanerr.New(scanerr.CodeValidation, "archive upload is disabled", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, gw.Config.ArchiveUploadMaxMB*1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, scanerr.New(scanerr.CodeValidation, "malformed multipart upload: "+err.Error(), err))
		return
	}

	file, _, err := r.FormFile("archive")
	if err != nil {
		writeError(w, scanerr.New(scanerr.CodeValidation, "missing \"archive\" form field", err))
		return
	}
	defer file.Close()

	if err := os.MkdirAll(gw.Config.ArchiveUploadDir, 0o755); err != nil {
		writeError(w, scanerr.New(scanerr.CodeInternal, "preparing archive staging directory", err))
		return
	}
	stagedPath := filepath.Join(gw.Config.ArchiveUploadDir, uuid.New().String()+".tar")

	staged, err := os.Create(stagedPath)
	if err != nil {
		writeError(w, scanerr.New(scanerr.CodeInternal, "staging uploaded archive", err))
		return
	}
	if _, err := io.Copy(staged, file); err != nil {
		staged.Close()
		os.Remove(stagedPath)
		writeError(w, scanerr.New(scanerr.CodeValidation, "reading uploaded archive", err))
		return
	}
	staged.Close()

	digest, repoName, err := inspectArchive(stagedPath)
	if err != nil {
		os.Remove(stagedPath)
		writeError(w, scanerr.New(scanerr.CodeValidation, "inspecting uploaded archive", err))
		return
	}
	if repoName == "" {
		repoName = "uploaded-archive"
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	scan, err := gw.Submission.SubmitArchive(ctx, stagedPath, repoName, digest, actorFromRequest(r))
	if err != nil {
		os.Remove(stagedPath)
		writeError(w, err)
		return
	}

	w.Header().Set("X-Cache", "BYPASS")
	writeJSON(w, http.StatusAccepted, FromScan(scan, false))
}

// inspectArchive computes the SHA-256 digest of the staged archive and,
// best-effort, extracts the repository name from a docker-save
// manifest.json entry. A missing or unparseable manifest is not an error:
// the caller falls back to a generic name.
func inspectArchive(path string) (digest, repoName string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", "", err
	}
	digest = hex.EncodeToString(h.Sum(nil))

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		repoName = repoNameFromManifest(f)
	}
	return digest, repoName, nil
}

func repoNameFromManifest(r io.Reader) string {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err != nil {
			return ""
		}
		if hdr.Name != "manifest.json" {
			continue
		}
		var entries []dockerSaveManifestEntry
		if err := json.NewDecoder(tr).Decode(&entries); err != nil || len(entries) == 0 || len(entries[0].RepoTags) == 0 {
			return ""
		}
		return repoTagToName(entries[0].RepoTags[0])
	}
}

func repoTagToName(repoTag string) string {
	idx := strings.LastIndex(repoTag, ":")
	if idx <= 0 {
		return repoTag
	}
	return repoTag[:idx]
}
