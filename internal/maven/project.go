// internal/maven/project.go
package maven

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ClasspathFile is the file, relative to a unit's build directory, holding the
// resolved dependency classpath. It is produced by
// `mvn dependency:build-classpath -Dmdep.outputFile=target/suture.classpath`.
const ClasspathFile = "suture.classpath"

// Unit is one module of a Maven reactor with its build layout resolved.
type Unit struct {
	ArtifactID string
	BaseDir    string

	SourceDir     string
	TestSourceDir string
	BuildDir      string
	OutputDir     string
	TestOutputDir string
	// GeneratedSourcesDir is empty when the build did not generate sources.
	GeneratedSourcesDir string

	Properties map[string]string
	// Classpath holds dependency entries read from ClasspathFile, in file order.
	Classpath []string
}

// ReportsDir is where surefire writes this unit's XML reports.
func (u Unit) ReportsDir() string {
	return filepath.Join(u.BuildDir, "surefire-reports")
}

// Project is a loaded reactor. Units are in reactor order, root first.
type Project struct {
	Root  string
	Units []Unit
}

// SourceRoots returns every existing source directory of the reactor, including
// generated sources.
func (p *Project) SourceRoots() []string {
	var roots []string
	for _, u := range p.Units {
		if isDir(u.SourceDir) {
			roots = append(roots, u.SourceDir)
		}
		if u.GeneratedSourcesDir != "" {
			roots = append(roots, u.GeneratedSourcesDir)
		}
	}
	return roots
}

// TestRoots returns every existing test source directory of the reactor.
func (p *Project) TestRoots() []string {
	var roots []string
	for _, u := range p.Units {
		if isDir(u.TestSourceDir) {
			roots = append(roots, u.TestSourceDir)
		}
	}
	return roots
}

// Property looks up a pom property on the root unit, returning def when unset.
func (p *Project) Property(name, def string) string {
	if len(p.Units) == 0 {
		return def
	}
	if v, ok := p.Units[0].Properties[name]; ok && v != "" {
		return v
	}
	return def
}

// LoadProject reads root/pom.xml and every module it declares.
func LoadProject(root string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	project := &Project{Root: abs}
	if err := project.load(abs, map[string]bool{}); err != nil {
		return nil, err
	}
	return project, nil
}

func (p *Project) load(dir string, seen map[string]bool) error {
	if seen[dir] {
		return nil
	}
	seen[dir] = true

	doc := etree.NewDocument()
	pomPath := filepath.Join(dir, "pom.xml")
	if err := doc.ReadFromFile(pomPath); err != nil {
		return fmt.Errorf("failed to read %s: %w", pomPath, err)
	}
	pom := doc.SelectElement("project")
	if pom == nil {
		return fmt.Errorf("%s has no <project> element", pomPath)
	}

	unit := Unit{
		ArtifactID: childText(pom, "artifactId"),
		BaseDir:    dir,
		Properties: map[string]string{},
	}
	if props := pom.SelectElement("properties"); props != nil {
		for _, prop := range props.ChildElements() {
			unit.Properties[prop.Tag] = strings.TrimSpace(prop.Text())
		}
	}

	build := pom.SelectElement("build")
	unit.BuildDir = layoutDir(dir, filepath.Join(dir, "target"), build, "directory", "target")
	unit.SourceDir = layoutDir(dir, unit.BuildDir, build, "sourceDirectory", filepath.Join("src", "main", "java"))
	unit.TestSourceDir = layoutDir(dir, unit.BuildDir, build, "testSourceDirectory", filepath.Join("src", "test", "java"))
	unit.OutputDir = layoutDir(dir, unit.BuildDir, build, "outputDirectory", filepath.Join(unit.BuildDir, "classes"))
	unit.TestOutputDir = layoutDir(dir, unit.BuildDir, build, "testOutputDirectory", filepath.Join(unit.BuildDir, "test-classes"))

	if generated := filepath.Join(unit.BuildDir, "generated-sources"); isDir(generated) {
		unit.GeneratedSourcesDir = generated
	}

	classpath, err := readClasspathFile(filepath.Join(unit.BuildDir, ClasspathFile))
	if err != nil {
		return err
	}
	unit.Classpath = classpath
	p.Units = append(p.Units, unit)

	if modules := pom.SelectElement("modules"); modules != nil {
		for _, module := range modules.SelectElements("module") {
			name := strings.TrimSpace(module.Text())
			if name == "" {
				continue
			}
			if err := p.load(filepath.Join(dir, filepath.FromSlash(name)), seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// layoutDir resolves a <build> child against the unit directory, substituting
// ${project.basedir} and ${project.build.directory}.
func layoutDir(base, buildDir string, build *etree.Element, tag, def string) string {
	value := ""
	if build != nil {
		value = childText(build, tag)
	}
	if value == "" {
		value = def
	}
	value = strings.NewReplacer(
		"${project.basedir}", base,
		"${basedir}", base,
		"${project.build.directory}", buildDir,
	).Replace(value)
	if !filepath.IsAbs(value) {
		value = filepath.Join(base, filepath.FromSlash(value))
	}
	return filepath.Clean(value)
}

func childText(parent *etree.Element, tag string) string {
	if el := parent.SelectElement(tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// readClasspathFile reads a path-list file. A missing file yields no entries.
func readClasspathFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open classpath file: %w", err)
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		for _, entry := range filepath.SplitList(scanner.Text()) {
			if entry = strings.TrimSpace(entry); entry != "" {
				entries = append(entries, entry)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classpath file: %w", err)
	}
	return entries, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ComplianceLevel derives the Java language level from compiler properties,
// trying source, then oldSource, then javaVersion. "-1" or "" means unset. The
// default is 7. Both "1.8" and "11" notations are accepted.
func ComplianceLevel(source, oldSource, javaVersion string) int {
	for _, candidate := range []string{source, oldSource, javaVersion} {
		if level, ok := majorVersion(candidate); ok {
			return level
		}
	}
	return 7
}

func majorVersion(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "-1" {
		return 0, false
	}
	v = strings.TrimPrefix(v, "1.")
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
