// Package digitize extracts text from uploaded invoice images so handwritten
// or printed bills can be keyed in faster. Extraction is best-effort: a
// failed scan is reported, never fatal to the request that follows it.
package digitize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Digitizer turns an uploaded document into plain text.
type Digitizer interface {
	Extract(ctx context.Context, fileName string, content []byte) (string, error)
}

// TesseractDigitizer shells out to the tesseract CLI. The upload is written
// to a scratch file because tesseract reads from disk.
type TesseractDigitizer struct {
	workDir string
	timeout time.Duration
}

func NewTesseractDigitizer(workDir string) *TesseractDigitizer {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &TesseractDigitizer{workDir: workDir, timeout: 60 * time.Second}
}

func (d *TesseractDigitizer) Extract(ctx context.Context, fileName string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty upload %q", fileName)
	}

	ext := filepath.Ext(fileName)
	scratch := filepath.Join(d.workDir, "scan-"+uuid.NewString()+ext)
	if err := os.WriteFile(scratch, content, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	defer os.Remove(scratch)

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// "stdout" makes tesseract print the recognized text instead of writing
	// an output file.
	cmd := exec.CommandContext(runCtx, "tesseract", scratch, "stdout")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
