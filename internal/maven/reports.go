// internal/maven/reports.go
package maven

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/suture/internal/triage"
)

// Reports is the aggregate of every surefire report found in a reactor.
type Reports struct {
	// Failures holds one record per failing or erroring test case, in unit
	// then file then document order.
	Failures []triage.FailureRecord
	// FailingClasses lists, once each, the suites with at least one failure or
	// error.
	FailingClasses []string
	// Suites counts the report files that were parsed.
	Suites int
}

type suiteResult struct {
	class    string
	failing  bool
	failures []triage.FailureRecord
}

// ReadReports parses <build>/surefire-reports/TEST-*.xml for every unit, at most
// concurrency files at a time. A unit without reports contributes nothing, and
// an unreadable report is logged and skipped.
func ReadReports(ctx context.Context, logger *zap.Logger, units []Unit, concurrency int) (*Reports, error) {
	logger = logger.Named("surefire")

	var files []string
	for _, u := range units {
		matches, err := filepath.Glob(filepath.Join(u.ReportsDir(), "TEST-*.xml"))
		if err != nil {
			return nil, fmt.Errorf("failed to list surefire reports of %s: %w", u.ArtifactID, err)
		}
		files = append(files, matches...)
	}

	results := make([]*suiteResult, len(files))
	g, groupCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			result, err := parseSuite(file)
			if err != nil {
				logger.Warn("Skipping unreadable surefire report.", zap.String("file", file), zap.Error(err))
				return nil
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := &Reports{}
	seenClass := make(map[string]bool)
	for _, result := range results {
		if result == nil {
			continue
		}
		reports.Suites++
		reports.Failures = append(reports.Failures, result.failures...)
		if result.failing && !seenClass[result.class] {
			seenClass[result.class] = true
			reports.FailingClasses = append(reports.FailingClasses, result.class)
		}
	}
	logger.Debug("Surefire reports read.",
		zap.Int("suites", reports.Suites),
		zap.Int("failures", len(reports.Failures)))
	return reports, nil
}

func parseSuite(path string) (*suiteResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, err
	}
	suite := doc.SelectElement("testsuite")
	if suite == nil {
		return nil, fmt.Errorf("no <testsuite> element")
	}

	result := &suiteResult{class: suite.SelectAttrValue("name", "")}
	counted := atoi(suite.SelectAttrValue("failures", "0")) + atoi(suite.SelectAttrValue("errors", "0"))

	for _, tc := range suite.SelectElements("testcase") {
		problem := tc.SelectElement("failure")
		if problem == nil {
			problem = tc.SelectElement("error")
		}
		if problem == nil {
			continue
		}
		class := tc.SelectAttrValue("classname", result.class)
		result.failures = append(result.failures, triage.FailureRecord{
			TestID: class + "#" + tc.SelectAttrValue("name", ""),
			Detail: strings.TrimSpace(problem.Text()),
		})
	}
	result.failing = counted > 0 || len(result.failures) > 0
	return result, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
