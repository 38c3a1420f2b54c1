package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture/internal/explore"
	"github.com/xkilldash9x/suture/internal/selector"
)

// helper configures what the fake engine process does.
type helper struct {
	stdout   string
	stderr   string
	exitCode int
	hang     bool
	argsFile string
	// logFile receives logLine right before the process exits.
	logFile string
	logLine string
}

// fakeEngine points execCommandContext at TestHelperProcess for the duration of the test.
func fakeEngine(t *testing.T, h helper) {
	t.Helper()
	testExecutable := os.Args[0]
	execCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, testExecutable, cs...)
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"HELPER_STDOUT="+h.stdout,
			"HELPER_STDERR="+h.stderr,
			fmt.Sprintf("HELPER_EXIT_CODE=%d", h.exitCode),
			"HELPER_ARGS_FILE="+h.argsFile,
			"HELPER_LOG_FILE="+h.logFile,
			"HELPER_LOG_LINE="+h.logLine,
		)
		if h.hang {
			cmd.Env = append(cmd.Env, "HELPER_HANG=1")
		}
		return cmd
	}
	t.Cleanup(func() { execCommandContext = exec.CommandContext })
}

func newProcess(t *testing.T, mutate func(*Config)) *Process {
	t.Helper()
	cfg := Config{
		Command:         []string{"java", "-jar", "npefix.jar"},
		Sources:         []string{"/p/src/main/java", "/p/target/generated-sources"},
		Classpath:       []string{"/p/target/classes", "/repo/junit.jar"},
		BinDir:          "/out/npefix-bin",
		OutputDir:       "/out",
		ComplianceLevel: 8,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(zap.NewNop(), Config{Sources: []string{"src"}})
	assert.ErrorContains(t, err, "command is empty")

	_, err = New(zap.NewNop(), Config{Command: []string{"java"}})
	assert.ErrorContains(t, err, "source location")

	p, err := New(zap.NewNop(), Config{Command: []string{"java"}, Sources: []string{"src"}})
	require.NoError(t, err)
	assert.Equal(t, selector.RepairDefault, p.cfg.RepairStrategy)
}

func TestProcess_Instrument(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	fakeEngine(t, helper{argsFile: argsFile})
	p := newProcess(t, nil)

	require.NoError(t, p.Instrument(context.Background()))

	assert.Equal(t, []string{
		"java", "-jar", "npefix.jar", "instrument",
		"--sources", "/p/src/main/java" + string(os.PathListSeparator) + "/p/target/generated-sources",
		"--repair-strategy", "default",
		"--classpath", "/p/target/classes" + string(os.PathListSeparator) + "/repo/junit.jar",
		"--bin", "/out/npefix-bin",
		"--output", "/out",
		"--compliance", "8",
	}, readArgs(t, argsFile))

	// Second call is a no-op and returns the cached result.
	require.NoError(t, os.Remove(argsFile))
	require.NoError(t, p.Instrument(context.Background()))
	assert.NoFileExists(t, argsFile)
}

func TestProcess_InstrumentFailureIsSticky(t *testing.T) {
	fakeEngine(t, helper{exitCode: 3, stderr: "cannot parse Foo.java"})
	p := newProcess(t, nil)

	err := p.Instrument(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to instrument sources")
	assert.Contains(t, err.Error(), "cannot parse Foo.java")

	assert.Equal(t, err, p.Instrument(context.Background()))

	_, err = p.Run(context.Background(), mustSelector(t, "exploration"), []string{"T#a"}, selector.NewSearchSpace())
	assert.ErrorContains(t, err, "before instrumentation")
}

func mustSelector(t *testing.T, kind string) selector.Selector {
	t.Helper()
	sel, err := selector.New(kind, selector.RepairDefault)
	require.NoError(t, err)
	return sel
}

func TestProcess_Run(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	stream := strings.Join([]string{
		`{"kind":"offer","decision":{"site":"Foo.java:12","strategy":"Strat1A","action":"default"}}`,
		`{"kind":"lapse","lapse":{"decisions":[{"site":"Foo.java:12","strategy":"Strat1A","action":"default"}],"oracle":{"outcome":"passed"}}}`,
	}, "\n")

	fakeEngine(t, helper{})
	p := newProcess(t, nil)
	require.NoError(t, p.Instrument(context.Background()))

	fakeEngine(t, helper{stdout: stream, argsFile: argsFile})
	space := selector.NewSearchSpace()
	attempts, err := p.Run(context.Background(), mustSelector(t, "mono"), []string{"FooTest#a", "FooTest#b"}, space)

	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].NoProgress())
	assert.Equal(t, 1, space.Len())

	args := readArgs(t, argsFile)
	assert.Equal(t, "run", args[3])
	assert.Contains(t, args, "--multi-point=false")
	assert.Equal(t, "FooTest#a,FooTest#b", args[len(args)-1])
	assert.Contains(t, args, strings.Join(selector.EngineNames(selector.Catalogue()), ","))
}

func TestProcess_RunStrategies(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	fakeEngine(t, helper{})
	p := newProcess(t, func(c *Config) { c.Classpath = nil; c.ComplianceLevel = 0 })
	require.NoError(t, p.Instrument(context.Background()))

	fakeEngine(t, helper{argsFile: argsFile})
	strategies := selector.ReturnStrategies()
	attempts, err := p.RunStrategies(context.Background(), []string{"T#x"}, strategies, selector.NewSearchSpace())

	require.NoError(t, err)
	assert.Empty(t, attempts)
	args := readArgs(t, argsFile)
	assert.Equal(t, "sweep", args[3])
	assert.NotContains(t, args, "--classpath")
	assert.NotContains(t, args, "--compliance")
	assert.Contains(t, args, "Strat4.NULL,Strat4.VAR,Strat4.NEW,Strat4.VOID")
}

func TestProcess_Failures(t *testing.T) {
	t.Run("out of memory on stderr", func(t *testing.T) {
		fakeEngine(t, helper{})
		p := newProcess(t, nil)
		require.NoError(t, p.Instrument(context.Background()))

		fakeEngine(t, helper{stderr: "Exception in thread main java.lang.OutOfMemoryError: Java heap space", exitCode: 1})
		_, err := p.Run(context.Background(), mustSelector(t, "greedy"), []string{"T#a"}, selector.NewSearchSpace())
		assert.ErrorIs(t, err, explore.ErrOutOfMemory)
	})

	t.Run("out of memory logged just before exit", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "npefix.log")
		require.NoError(t, os.WriteFile(logFile, []byte("startup\n"), 0o600))
		fakeEngine(t, helper{})
		p := newProcess(t, func(c *Config) { c.LogFile = logFile })
		require.NoError(t, p.Instrument(context.Background()))

		fakeEngine(t, helper{
			exitCode: 1,
			logFile:  logFile,
			logLine:  "Exception in thread \"main\" java.lang.OutOfMemoryError: GC overhead limit exceeded",
		})
		_, err := p.Run(context.Background(), mustSelector(t, "greedy"), []string{"T#a"}, selector.NewSearchSpace())
		assert.ErrorIs(t, err, explore.ErrOutOfMemory)
	})

	t.Run("nonzero exit carries stderr", func(t *testing.T) {
		fakeEngine(t, helper{})
		p := newProcess(t, nil)
		require.NoError(t, p.Instrument(context.Background()))

		fakeEngine(t, helper{stderr: "no such test class", exitCode: 2})
		_, err := p.Run(context.Background(), mustSelector(t, "random"), []string{"T#a"}, selector.NewSearchSpace())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine run failed")
		assert.Contains(t, err.Error(), "no such test class")
	})

	t.Run("run timeout", func(t *testing.T) {
		fakeEngine(t, helper{})
		p := newProcess(t, func(c *Config) { c.RunTimeout = 100 * time.Millisecond })
		require.NoError(t, p.Instrument(context.Background()))

		fakeEngine(t, helper{hang: true})
		started := time.Now()
		_, err := p.Run(context.Background(), mustSelector(t, "exploration"), []string{"T#a"}, selector.NewSearchSpace())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "timed out")
		assert.Less(t, time.Since(started), 3*time.Second)
	})
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}

// TestHelperProcess stands in for the engine binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if os.Getenv("HELPER_HANG") == "1" {
		time.Sleep(10 * time.Second)
		os.Exit(0)
	}

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if path := os.Getenv("HELPER_ARGS_FILE"); path != "" {
		if err := os.WriteFile(path, []byte(strings.Join(args, "\n")), 0o600); err != nil {
			os.Exit(99)
		}
	}

	if out := os.Getenv("HELPER_STDOUT"); out != "" {
		fmt.Fprintln(os.Stdout, out)
	}
	if msg := os.Getenv("HELPER_STDERR"); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}

	if path := os.Getenv("HELPER_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			os.Exit(98)
		}
		fmt.Fprintln(f, os.Getenv("HELPER_LOG_LINE"))
		f.Close()
	}

	var exitCode int
	fmt.Sscanf(os.Getenv("HELPER_EXIT_CODE"), "%d", &exitCode)
	os.Exit(exitCode)
}
