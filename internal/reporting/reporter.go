// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/results"
)

// Supported output formats.
const (
	FormatJSON   = "json"
	FormatBrotli = "brotli"
	FormatSARIF  = "sarif"
)

// Reporter defines the interface for writing campaign reports to an output.
type Reporter interface {
	// Write processes a finished campaign report.
	Write(report *schemas.CampaignReport) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case FormatJSON, FormatBrotli, FormatSARIF:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case FormatSARIF:
		return NewSARIFReporter(writer, toolVersion), nil
	case FormatBrotli:
		return NewJSONReporter(writer, true), nil
	default:
		return NewJSONReporter(writer, false), nil
	}
}

// FileName is the report file name for a campaign finished at now.
func FileName(format string, now time.Time) string {
	base := fmt.Sprintf("patches_%d", now.UnixMilli())
	switch format {
	case FormatBrotli:
		return base + ".json.br"
	case FormatSARIF:
		return base + ".sarif"
	default:
		return base + ".json"
	}
}

// Read loads a JSON report from path, decompressing it when the name ends in ".br".
func Read(path string) (*schemas.CampaignReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".br") {
		r = brotli.NewReader(f)
	}
	return results.Decode(r)
}
