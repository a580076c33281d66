package support

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/aocr/cmd/aocr/cmd"
	"github.com/MeKo-Tech/aocr/internal/testutil"
)

// ServiceKey is the subscription key accepted by the fake service.
const ServiceKey = "integration-key"

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand string
	LastStdout  string
	LastStderr  string
	LastError   error

	// Test environment
	TempDir string
	Stdin   []byte

	// Fake OCR service
	Service *testutil.FakeOCR

	// Paths substituted into commands
	InputFile       string
	OutputFile      string
	AnnotationsFile string
}

// NewTestContext creates a new test context.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "aocr-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		TempDir:         tempDir,
		OutputFile:      filepath.Join(tempDir, "out.pdf"),
		AnnotationsFile: filepath.Join(tempDir, "annotations.yaml"),
	}, nil
}

// Cleanup stops the fake service and removes the scenario's files.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.Service != nil {
		testCtx.Service.Close()
		testCtx.Service = nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// expand replaces the {placeholders} of a command line.
func (testCtx *TestContext) expand(command string) string {
	service := ""
	if testCtx.Service != nil {
		service = fmt.Sprintf("-e %s -k %s --min-interval 1ms --poll-delay 5ms", testCtx.Service.URL(), ServiceKey)
	}
	return strings.NewReplacer(
		"{input}", testCtx.InputFile,
		"{output}", testCtx.OutputFile,
		"{annotations}", testCtx.AnnotationsFile,
		"{dir}", testCtx.TempDir,
		"{service}", service,
	).Replace(command)
}

// Run executes an aocr command line in process.
func (testCtx *TestContext) Run(command string) {
	command = testCtx.expand(command)
	testCtx.LastCommand = command

	args := strings.Fields(command)
	if len(args) > 0 && args[0] == "aocr" {
		args = args[1:]
	}

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(bytes.NewReader(testCtx.Stdin))
	root.SetArgs(args)

	testCtx.LastError = root.Execute()
	testCtx.LastStdout = stdout.String()
	testCtx.LastStderr = stderr.String()
}
