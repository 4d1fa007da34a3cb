// Package report delivers result envelopes to the external orchestrator.
// Emission is exactly once per invocation; delivery failure falls back to
// a local spool so the record is never lost.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"runbox/internal/harness/result"
	appErr "runbox/pkg/errors"
	"runbox/pkg/utils/logger"
)

// Reporter hands one envelope to a collaborator.
type Reporter interface {
	Emit(ctx context.Context, env result.Envelope) error
}

// WriterReporter writes the envelope as a single JSON line, used for the
// CLI's stdout emission.
type WriterReporter struct {
	W io.Writer
}

func (r WriterReporter) Emit(ctx context.Context, env result.Envelope) error {
	enc := json.NewEncoder(r.W)
	if err := enc.Encode(env); err != nil {
		return appErr.Wrapf(err, appErr.ReportError, "encode envelope failed")
	}
	return nil
}

// HTTPReporter POSTs the envelope to the orchestrator endpoint.
type HTTPReporter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPReporter creates a reporter for the given endpoint URL.
func NewHTTPReporter(endpoint string, timeout time.Duration) *HTTPReporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPReporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReporter) Emit(ctx context.Context, env result.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportError, "marshal envelope failed")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportError, "build report request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportError, "report request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return appErr.Newf(appErr.ReportRejected, "collaborator rejected report: %s", resp.Status)
	}
	return nil
}

// SpoolReporter writes the envelope as a zstd-compressed JSON artifact
// into a spool directory for later pickup.
type SpoolReporter struct {
	dir string
}

// NewSpoolReporter creates a reporter spooling into dir, creating it if
// needed.
func NewSpoolReporter(dir string) (*SpoolReporter, error) {
	if dir == "" {
		return nil, appErr.ValidationError("spool_dir", "required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.SpoolFailed, "create spool dir failed")
	}
	return &SpoolReporter{dir: dir}, nil
}

func (r *SpoolReporter) Emit(ctx context.Context, env result.Envelope) error {
	name := fmt.Sprintf("%s-%d.json.zst", env.InvocationID, time.Now().UnixNano())
	path := filepath.Join(r.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return appErr.Wrapf(err, appErr.SpoolFailed, "create spool file failed")
	}
	defer file.Close()

	zw, err := zstd.NewWriter(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.SpoolFailed, "create zstd writer failed")
	}
	if err := json.NewEncoder(zw).Encode(env); err != nil {
		_ = zw.Close()
		return appErr.Wrapf(err, appErr.SpoolFailed, "encode spool entry failed")
	}
	if err := zw.Close(); err != nil {
		return appErr.Wrapf(err, appErr.SpoolFailed, "flush spool entry failed")
	}
	return nil
}

// MultiReporter tries the primary reporter and falls back on failure, so
// the caller always receives or can recover the record.
type MultiReporter struct {
	primary  Reporter
	fallback Reporter
}

// NewMultiReporter combines a primary reporter with a fallback.
func NewMultiReporter(primary, fallback Reporter) *MultiReporter {
	return &MultiReporter{primary: primary, fallback: fallback}
}

func (r *MultiReporter) Emit(ctx context.Context, env result.Envelope) error {
	err := r.primary.Emit(ctx, env)
	if err == nil {
		return nil
	}
	if r.fallback == nil {
		return err
	}
	logger.Warn(ctx, "primary report failed, spooling", zap.Error(err))
	return r.fallback.Emit(ctx, env)
}
