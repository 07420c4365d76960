package recognize

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// OCRmyPDF runs the ocrmypdf command line tool.
type OCRmyPDF struct {
	Binary string
}

func NewOCRmyPDF(binary string) *OCRmyPDF {
	if binary == "" {
		binary = "ocrmypdf"
	}
	return &OCRmyPDF{Binary: binary}
}

func (e *OCRmyPDF) Name() string { return "ocrmypdf" }

// Available reports whether the binary is on PATH.
func (e *OCRmyPDF) Available() bool {
	_, err := exec.LookPath(e.Binary)
	return err == nil
}

// Args builds the command line for one run.
func (e *OCRmyPDF) Args(inputPath, outputPath string, opts Options) []string {
	args := []string{"--quiet"}
	if len(opts.Languages) > 0 {
		args = append(args, "-l", strings.Join(opts.Languages, "+"))
	}
	if opts.RotatePages {
		args = append(args, "--rotate-pages")
	}
	if opts.Deskew {
		args = append(args, "--deskew")
	}
	if opts.Clean {
		args = append(args, "--clean")
	}
	if opts.Force {
		args = append(args, "--force-ocr")
	} else {
		args = append(args, "--skip-text")
	}
	if opts.Optimize > 0 {
		args = append(args, "--optimize", strconv.Itoa(opts.Optimize))
	}
	return append(args, inputPath, outputPath)
}

func (e *OCRmyPDF) Recognize(ctx context.Context, inputPath, outputPath string, opts Options) error {
	if !e.Available() {
		return fmt.Errorf("%s: %w", e.Binary, ErrEngineUnavailable)
	}
	cmd := exec.CommandContext(ctx, e.Binary, e.Args(inputPath, outputPath, opts)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ocrmypdf: %w: %s", err, tail(out, 512))
	}
	return nil
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
