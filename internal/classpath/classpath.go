// internal/classpath/classpath.go
package classpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/suture/internal/maven"
)

// Assembler builds the ordered list of locations visible to the repair engine.
type Assembler struct {
	// ExcludeTestOutputs drops each unit's test-classes directory.
	ExcludeTestOutputs bool
	// Extra entries are appended after the units, e.g. the engine's own jar.
	Extra []string
}

// Assemble returns output directories, test output directories and dependency
// entries of every unit, in reactor order, without duplicates.
func (a Assembler) Assemble(units []maven.Unit) []string {
	seen := make(map[string]bool)
	var entries []string
	add := func(entry string) {
		if entry == "" {
			return
		}
		entry = filepath.Clean(entry)
		if seen[entry] {
			return
		}
		seen[entry] = true
		entries = append(entries, entry)
	}

	testOutputs := make(map[string]bool)
	if a.ExcludeTestOutputs {
		for _, u := range units {
			testOutputs[filepath.Clean(u.TestOutputDir)] = true
		}
	}

	for _, u := range units {
		add(u.OutputDir)
		if !a.ExcludeTestOutputs {
			add(u.TestOutputDir)
		}
		for _, dep := range u.Classpath {
			// Sibling modules may list each other's test outputs.
			if testOutputs[filepath.Clean(dep)] {
				continue
			}
			add(dep)
		}
	}
	for _, extra := range a.Extra {
		add(extra)
	}
	return entries
}

// Coordinates identify a Maven artifact.
type Coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
}

func (c Coordinates) String() string {
	return c.GroupID + ":" + c.ArtifactID + ":" + c.Version
}

// ArtifactPath locates an artifact's jar inside a local repository. The
// repository path may start with "~".
func ArtifactPath(localRepository string, c Coordinates) (string, error) {
	if c.GroupID == "" || c.ArtifactID == "" || c.Version == "" {
		return "", fmt.Errorf("incomplete artifact coordinates %q", c.String())
	}
	repo, err := homedir.Expand(localRepository)
	if err != nil {
		return "", fmt.Errorf("failed to expand local repository path: %w", err)
	}
	return filepath.Join(
		repo,
		filepath.FromSlash(strings.ReplaceAll(c.GroupID, ".", "/")),
		c.ArtifactID,
		c.Version,
		c.ArtifactID+"-"+c.Version+".jar",
	), nil
}

// Join renders entries as an OS path list.
func Join(entries []string) string {
	return strings.Join(entries, string(os.PathListSeparator))
}
