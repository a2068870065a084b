package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config controls the tesseract invocation.
type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Lang      string // default "eng"
	PSM       int    // e.g., 6 is good for uniform block of text
	WorkDir   string // scratch dir for image files; if empty -> os.TempDir()
}

// Tesseract runs the tesseract binary over image bytes. Plain stdout output
// carries no per-word confidence, so the score is a content heuristic.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type TesseractOption func(*Tesseract)

// WithRunner substitutes the command runner, for tests.
func WithRunner(r Runner) TesseractOption {
	return func(t *Tesseract) {
		if r != nil {
			t.runner = r
		}
	}
}

func NewTesseract(cfg Config, logger *slog.Logger, opts ...TesseractOption) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	t := &Tesseract{cfg: cfg, runner: execRunner{}, logger: logger}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Recognize writes the image to a scratch file and OCRs it. The caller is
// expected to bound ctx; a cancelled context kills the process.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (Result, error) {
	start := time.Now()

	f, err := os.CreateTemp(t.cfg.WorkDir, "sipcoin-ocr-*.img")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close scratch file: %w", err)
	}

	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}

	stdout, _, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		t.logger.Error("tesseract failed", "path", filepath.Base(path), "error", err)
		return Result{}, fmt.Errorf("tesseract: %w", err)
	}

	text := string(stdout)
	res := Result{Text: text, Confidence: heuristicConfidence(text)}
	t.logger.Debug("ocr completed",
		"bytes_in", len(image),
		"text_bytes", len(text),
		"confidence", res.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
