package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
)

// resetForTest silences the global logger and keeps config auto-discovery
// away from the developer's working directory.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	t.Chdir(t.TempDir())
}

// executeCommand runs a fresh command tree and returns everything it printed.
func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// findSubcommand returns the child of root whose name is name.
func findSubcommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("subcommand %q not found", name)
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func npeCase(name, frame string) string {
	return fmt.Sprintf(`  <testcase name=%q classname="com.acme.CartTest">
    <error type="java.lang.NullPointerException"><![CDATA[java.lang.NullPointerException
	at %s
	at com.acme.CartTest.%s(CartTest.java:10)]]></error>
  </testcase>
`, name, frame, name)
}

// newProject lays out a Maven project whose only surefire report holds cases.
func newProject(t *testing.T, cases ...string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pom.xml"), `<project><artifactId>shop</artifactId></project>`)
	writeFile(t, filepath.Join(root, "src", "main", "java", "com", "acme", "Cart.java"), "class Cart {}")
	suite := `<testsuite name="com.acme.CartTest">` + "\n" + strings.Join(cases, "") + `</testsuite>`
	writeFile(t, filepath.Join(root, "target", "surefire-reports", "TEST-com.acme.CartTest.xml"), suite)
	return root
}

func failingProject(t *testing.T) string {
	return newProject(t, npeCase("total", "com.acme.Cart.total(Cart.java:42)"))
}

func passingProject(t *testing.T) string {
	return newProject(t, `  <testcase name="ok" classname="com.acme.CartTest"/>`+"\n")
}

func testConfig(root string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.SetProjectRoot(root)
	cfg.SetCampaignLaps(2)
	return cfg
}
