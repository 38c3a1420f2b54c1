package reporting

import (
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/observability"
	"github.com/xkilldash9x/suture/internal/results"
)

// JSONReporter writes each report as indented JSON, optionally brotli-compressed.
type JSONReporter struct {
	mu         sync.Mutex
	writer     io.WriteCloser
	compressor *brotli.Writer
	logger     *zap.Logger
	written    int
}

// NewJSONReporter takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, compress bool) *JSONReporter {
	r := &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
	}
	if compress {
		r.compressor = brotli.NewWriterLevel(writer, brotli.DefaultCompression)
	}
	return r
}

// Write encodes report immediately.
func (r *JSONReporter) Write(report *schemas.CampaignReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var w io.Writer = r.writer
	if r.compressor != nil {
		w = r.compressor
	}
	if err := results.Encode(w, report); err != nil {
		return err
	}
	r.written++
	return nil
}

// Close flushes the compressor, if any, and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flushErr error
	if r.compressor != nil {
		flushErr = r.compressor.Close()
	}
	closeErr := r.writer.Close()

	if flushErr != nil {
		return fmt.Errorf("failed to flush compressed report: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Report writer closed.", zap.Int("reports", r.written), zap.Bool("compressed", r.compressor != nil))
	return nil
}
