// internal/triage/triage.go
package triage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
)

// Scope controls how many frames of the innermost cause select source files.
type Scope string

const (
	// ScopeClass uses the first frame only.
	ScopeClass Scope = "class"
	// ScopePackage uses the directory of the first frame's type.
	ScopePackage Scope = "package"
	// ScopeStack walks every frame and stops at the first one that resolves.
	ScopeStack Scope = "stack"
	// ScopeProject triages like ScopeClass. The campaign widens the engine's
	// sources to every source root.
	ScopeProject Scope = "project"
)

// ParseScope normalizes a configured scope name.
func ParseScope(s string) (Scope, error) {
	switch scope := Scope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeClass, ScopePackage, ScopeStack, ScopeProject:
		return scope, nil
	default:
		return "", fmt.Errorf("unknown localization scope %q", s)
	}
}

// FailureRecord is one failing test case as read from a build report.
type FailureRecord struct {
	// TestID is "<qualified class>#<method>".
	TestID string
	// Detail is the raw failure text. It may be empty.
	Detail string
}

// Options configure a triage pass.
type Options struct {
	Scope Scope
	// SourceRoots are the absolute source directories files may resolve under.
	SourceRoots []string
	// ExceptionFilter is matched as a substring of the innermost exception type.
	ExceptionFilter string
	// AnyException disables the filter.
	AnyException bool
	// SourceExt is appended to resolved type paths. Defaults to ".java".
	SourceExt string
}

func (o Options) accepts(exceptionType string) bool {
	if o.AnyException || o.ExceptionFilter == "" {
		return true
	}
	return strings.Contains(exceptionType, o.ExceptionFilter)
}

// Triage turns failure records into candidate faults. Records whose detail
// cannot be parsed are logged and skipped. Records for the same test are merged
// with the union of their files, and a test whose frames resolve to nothing is
// still returned with an empty file set. Output follows the order in which each
// test first appears.
func Triage(logger *zap.Logger, records []FailureRecord, opts Options) []schemas.CandidateFault {
	logger = logger.Named("triage")
	if opts.SourceExt == "" {
		opts.SourceExt = ".java"
	}

	var order []string
	byTest := make(map[string]map[string]struct{})

	for _, record := range records {
		if strings.TrimSpace(record.Detail) == "" {
			continue
		}
		trace, err := Parse(record.Detail)
		if err != nil {
			logger.Warn("Skipping unparseable failure detail.", zap.String("test", record.TestID), zap.Error(err))
			continue
		}
		root := trace.Root()
		if !opts.accepts(root.ExceptionType) {
			logger.Debug("Exception type filtered out.",
				zap.String("test", record.TestID),
				zap.String("exception", root.ExceptionType))
			continue
		}

		files, seen := byTest[record.TestID]
		if !seen {
			files = make(map[string]struct{})
			byTest[record.TestID] = files
			order = append(order, record.TestID)
		}
		for _, file := range resolve(root.Frames, opts) {
			files[file] = struct{}{}
		}
	}

	faults := make([]schemas.CandidateFault, 0, len(order))
	for _, testID := range order {
		files := make([]string, 0, len(byTest[testID]))
		for file := range byTest[testID] {
			files = append(files, file)
		}
		sort.Strings(files)
		faults = append(faults, schemas.CandidateFault{TestID: testID, Files: files})
	}
	return faults
}

// resolve maps frames to existing files under the source roots according to
// the scope.
func resolve(frames []Frame, opts Options) []string {
	var resolved []string
	for _, frame := range frames {
		if rel, ok := relativePath(frame, opts); ok {
			if file, found := firstExisting(opts.SourceRoots, rel); found {
				resolved = append(resolved, file)
				break
			}
		}
		if opts.Scope != ScopeStack {
			break
		}
	}
	return resolved
}

// relativePath turns a frame's declaring type into a path relative to a source
// root: dots become separators, nested type suffixes after "$" are cut, and the
// package scope keeps only the directory.
func relativePath(frame Frame, opts Options) (string, bool) {
	typeName := frame.DeclaringType()
	if idx := strings.Index(typeName, "$"); idx >= 0 {
		typeName = typeName[:idx]
	}
	if typeName == "" {
		return "", false
	}
	rel := strings.ReplaceAll(typeName, ".", "/") + opts.SourceExt
	if opts.Scope == ScopePackage {
		dir := filepath.Dir(rel)
		if dir == "." {
			return "", false
		}
		rel = dir
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

func firstExisting(roots []string, rel string) (string, bool) {
	for _, root := range roots {
		candidate := filepath.Join(root, rel)
		if _, err := os.Stat(candidate); err == nil {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return candidate, true
			}
			return abs, true
		}
	}
	return "", false
}
