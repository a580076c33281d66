package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/aocr/internal/testutil"
)

func TestTextCommand(t *testing.T) {
	dir := isolate(t)
	input := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(input, testutil.BuildPDF(t,
		testutil.PDFPage{Width: 200, Height: 300, Text: "first page"},
		testutil.PDFPage{Width: 200, Height: 300, Text: "second page"},
	), 0o600))

	stdout, stderr, err := executeCommand(t, nil, "text", "-i", input)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "first page")
	assert.Contains(t, stdout, "\fsecond page")

	stdout, stderr, err = executeCommand(t, nil, "text", "-i", input, "-f", "json")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, `"words": 2`)
	assert.Contains(t, stdout, `"page": 1`)
}

func TestTextCommand_InvalidFormat(t *testing.T) {
	dir := isolate(t)
	input := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(input, testutil.BuildPDF(t, testutil.PDFPage{Width: 100, Height: 100}), 0o600))

	_, _, err := executeCommand(t, nil, "text", "-i", input, "-f", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTextCommand_ReadsRecognizedText(t *testing.T) {
	dir := isolate(t)
	fake := testutil.NewFakeOCR(fakeKey)
	defer fake.Close()

	input := scannedInput(t, dir, [2]int{60, 80}, [2]int{70, 90})
	output := filepath.Join(dir, "out.pdf")
	_, stderr, err := executeCommand(t, nil, runArgs(fake, "-i", input, "-o", output)...)
	require.NoError(t, err, stderr)

	stdout, stderr, err := executeCommand(t, nil, "text", "-i", output)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "scan 60x80")
	assert.Contains(t, stdout, "scan 70x90")
}

func TestRun_WarnsAboutExistingText(t *testing.T) {
	dir := isolate(t)
	fake := testutil.NewFakeOCR(fakeKey)
	defer fake.Close()

	input := filepath.Join(dir, "vector.pdf")
	require.NoError(t, os.WriteFile(input, testutil.BuildPDF(t,
		testutil.PDFPage{Width: 200, Height: 300, Text: "already searchable"},
	), 0o600))

	_, stderr, err := executeCommand(t, nil, runArgs(fake,
		"-i", input, "-o", filepath.Join(dir, "out.pdf"), "--no-image", "blank")...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "input already has text")
}
