// Package snapshot persists an annotated JPEG per violation to an
// addressable store and returns a URL.
package snapshot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Writer is the snapshot storage contract. Failures are logged by the
// caller and yield a null URL; the violation is still persisted.
type Writer interface {
	Write(ctx context.Context, cameraID, workerID string, at time.Time, jpeg []byte) (url string, err error)
}

// Local writes snapshots under baseDir/violations/<camera_id>/ and
// returns a URL rooted at publicBaseURL.
type Local struct {
	BaseDir       string
	PublicBaseURL string
}

func NewLocal(baseDir, publicBaseURL string) *Local {
	return &Local{BaseDir: baseDir, PublicBaseURL: publicBaseURL}
}

func (l *Local) Write(ctx context.Context, cameraID, workerID string, at time.Time, jpeg []byte) (string, error) {
	dir := filepath.Join(l.BaseDir, "violations", cameraID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir: %w", err)
	}

	name := fmt.Sprintf("%s_w%s_%s.jpg", at.UTC().Format("20060102T150405Z"), workerID, randomSuffix())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write: %w", err)
	}

	return fmt.Sprintf("%s/violations/%s/%s", l.PublicBaseURL, cameraID, name), nil
}

func randomSuffix() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
