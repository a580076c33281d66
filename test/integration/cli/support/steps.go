package support

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MeKo-Tech/aocr/internal/testutil"
)

// RegisterSteps registers every step definition of the CLI features.
func (testCtx *TestContext) RegisterSteps(sc *godog.ScenarioContext, t *testing.T) {
	// Service
	sc.Step(`^a fake OCR service$`, testCtx.aFakeOCRService)
	sc.Step(`^the OCR service fails every analysis$`, testCtx.theServiceFailsEveryAnalysis)
	sc.Step(`^the OCR service fails the first (\d+) analyses$`, testCtx.theServiceFailsTheFirstAnalyses)
	sc.Step(`^the OCR service throttles the first (\d+) submissions$`, testCtx.theServiceThrottles)
	sc.Step(`^the OCR service reports running for (\d+) polls$`, testCtx.theServiceReportsRunning)
	sc.Step(`^the OCR service rejects the key$`, testCtx.theServiceRejectsTheKey)

	// Inputs
	sc.Step(`^a scanned PDF with (\d+) pages$`, func(pages int) error { return testCtx.aScannedPDF(t, pages) })
	sc.Step(`^a PDF with (\d+) pages without images$`, func(pages int) error { return testCtx.aVectorPDF(t, pages) })
	sc.Step(`^a text file as input$`, testCtx.aTextFileAsInput)
	sc.Step(`^the input is piped to stdin$`, testCtx.theInputIsPipedToStdin)

	// Execution
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRun)

	// Outcome
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail with "([^"]*)"$`, testCtx.theCommandShouldFailWith)
	sc.Step(`^the output PDF should have (\d+) pages$`, testCtx.theOutputPDFShouldHavePages)
	sc.Step(`^stdout should be a PDF with (\d+) pages$`, testCtx.stdoutShouldBeAPDFWithPages)
	sc.Step(`^the output file should not exist$`, testCtx.theOutputFileShouldNotExist)
	sc.Step(`^the annotations should contain "([^"]*)"$`, testCtx.theAnnotationsShouldContain)
	sc.Step(`^stdout should contain "([^"]*)"$`, testCtx.stdoutShouldContain)
	sc.Step(`^the log should contain "([^"]*)"$`, testCtx.theLogShouldContain)
	sc.Step(`^the service should have received (\d+) submissions$`, testCtx.theServiceShouldHaveReceived)
	sc.Step(`^the service should have throttled (\d+) submissions$`, testCtx.theServiceShouldHaveThrottled)
	sc.Step(`^the service should never have seen concurrent requests$`, testCtx.theServiceShouldNeverHaveSeenConcurrentRequests)
}

func (testCtx *TestContext) aFakeOCRService() error {
	testCtx.Service = testutil.NewFakeOCR(ServiceKey)
	return nil
}

func (testCtx *TestContext) service() (*testutil.FakeOCR, error) {
	if testCtx.Service == nil {
		return nil, errors.New("no fake OCR service started")
	}
	return testCtx.Service, nil
}

func (testCtx *TestContext) theServiceFailsEveryAnalysis() error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	s.Fail = func(int) bool { return true }
	return nil
}

func (testCtx *TestContext) theServiceFailsTheFirstAnalyses(n int) error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	s.Fail = func(submission int) bool { return submission <= n }
	return nil
}

func (testCtx *TestContext) theServiceThrottles(n int) error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	s.Throttle = n
	return nil
}

func (testCtx *TestContext) theServiceReportsRunning(n int) error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	s.Running = n
	return nil
}

func (testCtx *TestContext) theServiceRejectsTheKey() error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	s.Key = "some-other-key"
	return nil
}

func (testCtx *TestContext) aScannedPDF(t *testing.T, pages int) error {
	images := make([]image.Image, pages)
	for i := range images {
		cfg := testutil.DefaultTestImageConfig()
		cfg.Text = fmt.Sprintf("p%d", i+1)
		cfg.Size = testutil.ImageSize{Width: 60 + 10*i, Height: 80 + 10*i}
		images[i] = testutil.GenerateTextImage(cfg)
	}
	return testCtx.writeInput("scan.pdf", testutil.ScannedPDF(t, images...))
}

func (testCtx *TestContext) aVectorPDF(t *testing.T, pages int) error {
	specs := make([]testutil.PDFPage, pages)
	for i := range specs {
		specs[i] = testutil.PDFPage{Width: 200, Height: 300, Text: fmt.Sprintf("page %d", i+1)}
	}
	return testCtx.writeInput("vector.pdf", testutil.BuildPDF(t, specs...))
}

func (testCtx *TestContext) aTextFileAsInput() error {
	return testCtx.writeInput("notes.txt", []byte("just some notes\n"))
}

func (testCtx *TestContext) writeInput(name string, data []byte) error {
	path := filepath.Join(testCtx.TempDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	testCtx.InputFile = path
	return nil
}

func (testCtx *TestContext) theInputIsPipedToStdin() error {
	data, err := os.ReadFile(testCtx.InputFile)
	if err != nil {
		return fmt.Errorf("no input to pipe: %w", err)
	}
	testCtx.Stdin = data
	return nil
}

func (testCtx *TestContext) iRun(command string) error {
	testCtx.Run(command)
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nstderr:\n%s", testCtx.LastCommand, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFailWith(message string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %q succeeded, expected failure", testCtx.LastCommand)
	}
	if !strings.Contains(testCtx.LastError.Error(), message) {
		return fmt.Errorf("error %q does not contain %q", testCtx.LastError, message)
	}
	return nil
}

func pageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("output is not a readable PDF: %w", err)
	}
	return n, nil
}

func (testCtx *TestContext) theOutputPDFShouldHavePages(expected int) error {
	data, err := os.ReadFile(testCtx.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to read output: %w", err)
	}
	n, err := pageCount(data)
	if err != nil {
		return err
	}
	if n != expected {
		return fmt.Errorf("expected %d pages, got %d", expected, n)
	}
	return nil
}

func (testCtx *TestContext) stdoutShouldBeAPDFWithPages(expected int) error {
	if !strings.HasPrefix(testCtx.LastStdout, "%PDF-") {
		return errors.New("stdout does not start with a PDF header")
	}
	n, err := pageCount([]byte(testCtx.LastStdout))
	if err != nil {
		return err
	}
	if n != expected {
		return fmt.Errorf("expected %d pages, got %d", expected, n)
	}
	return nil
}

func (testCtx *TestContext) theOutputFileShouldNotExist() error {
	if _, err := os.Stat(testCtx.OutputFile); !os.IsNotExist(err) {
		return fmt.Errorf("output file %s exists", testCtx.OutputFile)
	}
	return nil
}

func (testCtx *TestContext) theAnnotationsShouldContain(text string) error {
	data, err := os.ReadFile(testCtx.AnnotationsFile)
	if err != nil {
		return fmt.Errorf("failed to read annotations: %w", err)
	}
	if !strings.Contains(string(data), text) {
		return fmt.Errorf("annotations do not contain %q:\n%s", text, data)
	}
	return nil
}

func (testCtx *TestContext) stdoutShouldContain(text string) error {
	if !strings.Contains(testCtx.LastStdout, text) {
		return fmt.Errorf("stdout does not contain %q:\n%s", text, testCtx.LastStdout)
	}
	return nil
}

func (testCtx *TestContext) theLogShouldContain(text string) error {
	if !strings.Contains(testCtx.LastStderr, text) {
		return fmt.Errorf("log does not contain %q:\n%s", text, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theServiceShouldHaveReceived(expected int) error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	if got := s.Submissions(); got != expected {
		return fmt.Errorf("expected %d submissions, got %d", expected, got)
	}
	return nil
}

func (testCtx *TestContext) theServiceShouldHaveThrottled(expected int) error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	if got := s.Throttled(); got != expected {
		return fmt.Errorf("expected %d throttled submissions, got %d", expected, got)
	}
	return nil
}

func (testCtx *TestContext) theServiceShouldNeverHaveSeenConcurrentRequests() error {
	s, err := testCtx.service()
	if err != nil {
		return err
	}
	if got := s.MaxInFlight(); got > 1 {
		return fmt.Errorf("service saw %d concurrent requests", got)
	}
	return nil
}
