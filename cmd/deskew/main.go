// Command deskew levels a single scanned image from the command line.
//
//	deskew -in scan.png -out level.png [-report report.json] [-spectrum spectrum.png]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-deskew/config"
	"github.com/feichai0017/document-deskew/internal/app"
	"github.com/feichai0017/document-deskew/internal/models"
	"github.com/feichai0017/document-deskew/pkg/converters"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/skew"
	"github.com/feichai0017/document-deskew/pkg/spectral"
)

type options struct {
	in, out, report, spectrum string
	configPath                string
	method                    string
	workers, accuracy         int
	ocr                       bool
	language                  string
	verbose                   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.in, "in", "", "input image (png, jpeg, gif, tiff, bmp, webp)")
	flag.StringVar(&opts.out, "out", "", "output PNG, defaults to <in>_aligned.png")
	flag.StringVar(&opts.report, "report", "", "write the JSON alignment report to this path")
	flag.StringVar(&opts.spectrum, "spectrum", "", "write the filtered amplitude spectrum to this PNG")
	flag.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	flag.StringVar(&opts.method, "method", "", "transform: direct or fast")
	flag.IntVar(&opts.workers, "workers", 0, "goroutines used by the direct transform, 0 means GOMAXPROCS")
	flag.IntVar(&opts.accuracy, "accuracy", 0, "bright spectrum points gathered")
	flag.BoolVar(&opts.ocr, "ocr", false, "run Tesseract on the aligned image")
	flag.StringVar(&opts.language, "lang", "", "Tesseract language, e.g. eng or eng+deu")
	flag.BoolVar(&opts.verbose, "v", false, "log pipeline stages to stderr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "deskew:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	if opts.in == "" {
		return fmt.Errorf("-in is required")
	}
	if opts.out == "" {
		ext := filepath.Ext(opts.in)
		opts.out = opts.in[:len(opts.in)-len(ext)] + "_aligned.png"
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithErrorPaths(nil),
	)
	if err != nil {
		return err
	}
	defer log.Sync()

	proc, err := app.NewProcessor(cfg, log)
	if err != nil {
		return err
	}
	defer proc.Close()

	f, err := os.Open(opts.in)
	if err != nil {
		return err
	}
	defer f.Close()

	outcome, err := proc.Process(ctx, f)
	if err != nil {
		return err
	}

	input := outcome.Input
	input.FileName = filepath.Base(opts.in)
	report, err := converters.NewJSONReportConverter().Convert(input, outcome.Aligned, outcome.Result)
	if err != nil {
		return err
	}
	report.OCR = outcome.OCR

	if err := imaging.Save(outcome.Aligned, opts.out); err != nil {
		return fmt.Errorf("failed to save %s: %w", opts.out, err)
	}

	if opts.report != "" {
		if err := writeReport(opts.report, report); err != nil {
			return err
		}
	}

	if opts.spectrum != "" {
		if err := writeSpectrum(ctx, cfg, opts); err != nil {
			return err
		}
	}

	printSummary(stdout, opts.out, report)
	return nil
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.method != "" {
		cfg.Aligner.Method = opts.method
	}
	if opts.workers > 0 {
		cfg.Aligner.Workers = opts.workers
	}
	if opts.accuracy > 0 {
		cfg.Aligner.Accuracy = opts.accuracy
	}
	if opts.ocr {
		cfg.OCR.Enabled = true
	}
	if opts.language != "" {
		cfg.OCR.Language = opts.language
	}
}

func writeReport(path string, report *models.AlignmentReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := converters.Encode(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSpectrum saves the binarised spectrum the peaks were searched in.
func writeSpectrum(ctx context.Context, cfg *config.Config, opts options) error {
	img, err := imaging.Open(opts.in)
	if err != nil {
		return err
	}

	method, err := spectral.ParseMethod(cfg.Aligner.Method)
	if err != nil {
		return err
	}
	aligner := skew.NewAligner(skew.WithMaxSize(cfg.Aligner.MaxSize))
	square, err := aligner.Normalize(img)
	if err != nil {
		return err
	}

	out, err := spectral.DFTWith(ctx, square, spectral.Options{Workers: cfg.Aligner.Workers, Method: method})
	if err != nil {
		return err
	}
	return imaging.Save(spectral.Filter(out.AmplitudeImage()), opts.spectrum)
}

func printSummary(w io.Writer, out string, report *models.AlignmentReport) {
	est := report.Estimate
	fmt.Fprintf(w, "input:     %s (%dx%d %s)\n", report.Input.FileName, report.Input.Width, report.Input.Height, report.Input.Format)
	fmt.Fprintf(w, "slope:     %.6f\n", est.Slope)
	fmt.Fprintf(w, "rotation:  %.3f degrees clockwise\n", est.Degrees)
	fmt.Fprintf(w, "peaks:     %d found, quadrants %v, threshold %d\n", est.Found, est.Quadrants, est.Threshold)
	fmt.Fprintf(w, "timings:   %.1f ms\n", report.Timings.Total)
	if report.OCR != nil {
		fmt.Fprintf(w, "ocr:       %d words, confidence %.1f\n", report.OCR.Words, report.OCR.Confidence)
	}
	fmt.Fprintf(w, "output:    %s (%dx%d)\n", out, report.Output.Width, report.Output.Height)
}
