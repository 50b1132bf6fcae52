// Command fencecheck analyzes fencing stance photos from the command line and
// writes annotated copies next to a short console report.
//
//	fencecheck -stance lunge -out ./annotated photo1.jpg photo2.png
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/san-kum/fencing-cv/server/analysis"
	"github.com/san-kum/fencing-cv/server/annotate"
	"github.com/san-kum/fencing-cv/server/ml"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/processor"
	"github.com/san-kum/fencing-cv/server/render"
	"go.uber.org/zap"
)

var (
	stanceFlag    string
	mlURL         string
	outDir        string
	landmarksPath string
	overlay       bool
	timeout       time.Duration
)

func init() {
	flag.StringVar(&stanceFlag, "stance", string(pose.EnGarde), "stance to check: en_garde or lunge")
	flag.StringVar(&mlURL, "ml-url", "http://localhost:5000", "pose estimation service URL")
	flag.StringVar(&outDir, "out", ".", "directory for annotated images")
	flag.StringVar(&landmarksPath, "landmarks", "", "JSON landmark file to use instead of the pose service")
	flag.BoolVar(&overlay, "overlay", false, "draw feedback text onto the annotated image")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "per image analysis timeout")
}

// staticEstimator replays one landmark set for every image.
type staticEstimator struct {
	landmarks []pose.Landmark
}

func (s *staticEstimator) EstimatePose(ctx context.Context, img image.Image) ([]pose.Landmark, error) {
	return s.landmarks, nil
}

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: fencecheck [flags] image...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	stance, err := pose.ParseStance(stanceFlag)
	if err != nil {
		logger.Fatal("Invalid stance", zap.Error(err))
	}

	estimator, closeEstimator, err := newEstimator(logger)
	if err != nil {
		logger.Fatal("Failed to create pose estimator", zap.Error(err))
	}
	defer closeEstimator()

	renderer, err := render.NewRenderer()
	if err != nil {
		logger.Fatal("Failed to load annotation font", zap.Error(err))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		logger.Fatal("Failed to create output directory", zap.Error(err))
	}

	checker := &checker{
		orchestrator: analysis.NewOrchestrator(estimator, annotate.Options{OverlayFeedback: overlay}),
		renderer:     renderer,
		outDir:       outDir,
		timeout:      timeout,
	}

	paths := flag.Args()
	reports := make([]string, 0, len(paths))
	failed := 0

	bar := pb.StartNew(len(paths))
	for _, path := range paths {
		result, outPath, err := checker.checkFile(context.Background(), path, stance)
		bar.Increment()
		if err != nil {
			failed++
			logger.Error("Analysis failed", zap.String("path", path), zap.Error(err))
			continue
		}
		reports = append(reports, fmt.Sprintf("%s -> %s\n%s", path, outPath, formatReport(result)))
	}
	bar.Finish()

	for _, report := range reports {
		fmt.Println(report)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func newEstimator(logger *zap.Logger) (analysis.PoseEstimator, func(), error) {
	if landmarksPath != "" {
		landmarks, err := loadLandmarks(landmarksPath)
		if err != nil {
			return nil, nil, err
		}
		return &staticEstimator{landmarks: landmarks}, func() {}, nil
	}

	config := ml.DefaultClientConfig()
	config.HealthCheckInterval = 0
	client, err := ml.NewClient(mlURL, config, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func loadLandmarks(path string) ([]pose.Landmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read landmarks: %w", err)
	}

	var landmarks []pose.Landmark
	if err := json.Unmarshal(data, &landmarks); err != nil {
		return nil, fmt.Errorf("failed to parse landmarks: %w", err)
	}
	return landmarks, nil
}

type checker struct {
	orchestrator *analysis.Orchestrator
	renderer     *render.Renderer
	outDir       string
	timeout      time.Duration
}

// checkFile analyzes one image and writes its annotated copy. A photo with
// nobody in it is not an error; the copy is then the unmodified image.
func (c *checker) checkFile(ctx context.Context, path string, stance pose.Stance) (*analysis.Result, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	img, _, err := processor.DecodeImage(data)
	if err != nil {
		return nil, "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.orchestrator.Analyze(ctx, img, stance)
	if err != nil {
		return nil, "", err
	}

	outPath := filepath.Join(c.outDir, outputName(stance, path))
	file, err := os.Create(outPath)
	if err != nil {
		return nil, "", err
	}

	var annotated image.Image = img
	if result.Status == analysis.StatusSuccess {
		annotated = c.renderer.Render(img, result.Instructions)
	}
	if err := writePNG(file, annotated); err != nil {
		return nil, "", fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	return result, outPath, nil
}

func writePNG(file *os.File, img image.Image) error {
	err := png.Encode(file, img)
	return errors.Join(err, file.Close())
}

// outputName maps photo.jpg to <stance>_analyzed_photo.png.
func outputName(stance pose.Stance, path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_analyzed_%s.png", stance, name)
}

func formatReport(result *analysis.Result) string {
	var b strings.Builder
	writeReport(&b, result)
	return b.String()
}

func writeReport(w io.Writer, result *analysis.Result) {
	fmt.Fprintf(w, "%s Position Analysis:\n", result.Stance.Title())
	if len(result.Feedback) == 0 {
		fmt.Fprintf(w, "- Great job! Your %s form looks good.\n", result.Stance.DisplayName())
		return
	}
	for _, feedback := range result.Feedback {
		fmt.Fprintf(w, "- %s\n", feedback)
	}
}
