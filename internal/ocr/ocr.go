package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	pdftoppmBin  = "pdftoppm"
	tesseractBin = "tesseract"

	// minDPI is the floor for readable scans.
	minDPI = 300
)

// Runner recovers text from scanned PDF pages with external tools:
// pdftoppm renders the page to a grayscale image, tesseract reads it.
type Runner struct {
	dpi     int
	timeout time.Duration
}

func NewRunner(dpi int, timeout time.Duration) *Runner {
	if dpi < minDPI {
		dpi = minDPI
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{dpi: dpi, timeout: timeout}
}

// Available reports whether both external tools are on PATH.
func (r *Runner) Available() bool {
	if _, err := exec.LookPath(pdftoppmBin); err != nil {
		return false
	}
	if _, err := exec.LookPath(tesseractBin); err != nil {
		return false
	}
	return true
}

// PageText OCRs a single page of the PDF at path. Pages are 1-based.
func (r *Runner) PageText(ctx context.Context, path string, page int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rendered, err := r.render(ctx, path, page)
	if err != nil {
		return "", err
	}

	prepared, err := normalizeContrast(rendered)
	if err != nil {
		// tesseract usually copes with the raw render
		log.Warn().Err(err).Str("file", path).Int("page", page).Msg("contrast normalization failed, using raw render")
		prepared = rendered
	}

	return r.recognize(ctx, prepared)
}

// render shells out to pdftoppm, one grayscale PNG page on stdout.
func (r *Runner) render(ctx context.Context, path string, page int) ([]byte, error) {
	args := []string{
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", strconv.Itoa(r.dpi),
		"-gray",
		"-png",
		path,
	}
	cmd := exec.CommandContext(ctx, pdftoppmBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm page %d of %s: %w: %s", page, path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// recognize feeds the image to tesseract over stdin.
func (r *Runner) recognize(ctx context.Context, img []byte) (string, error) {
	cmd := exec.CommandContext(ctx, tesseractBin, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(img)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// normalizeContrast linearly stretches the grayscale histogram to the full
// range so faint scans read better.
func normalizeContrast(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode render: %w", err)
	}

	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	lo, hi := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			gray.SetGray(x, y, c)
			if c.Y < lo {
				lo = c.Y
			}
			if c.Y > hi {
				hi = c.Y
			}
		}
	}
	if lo >= hi || (lo == 0 && hi == 255) {
		return data, nil
	}

	scale := 255.0 / float64(hi-lo)
	for i, v := range gray.Pix {
		gray.Pix[i] = uint8(float64(v-lo)*scale + 0.5)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, gray); err != nil {
		return nil, fmt.Errorf("encode normalized image: %w", err)
	}
	return out.Bytes(), nil
}
