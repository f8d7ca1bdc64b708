//go:build gocv

package rover

import (
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// readRetryDelay paces capture reads after a failed grab.
const readRetryDelay = 10 * time.Millisecond

func init() {
	newGoCVPerceiver = func(cfg PerceptionConfig) (Perceiver, error) {
		return NewGoCVDetector(cfg), nil
	}
	openGoCVFrameSource = func(cfg CameraConfig, log *zap.Logger) (FrameSource, error) {
		src, err := OpenGoCVFrameSource(cfg, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// GoCVDetector is the OpenCV rendition of ColorBlobDetector.
type GoCVDetector struct {
	cfg          PerceptionConfig
	lower, upper gocv.Scalar
}

// NewGoCVDetector constructs an OpenCV-backed detector.
func NewGoCVDetector(cfg PerceptionConfig) *GoCVDetector {
	return &GoCVDetector{
		cfg:   cfg,
		lower: gocv.NewScalar(float64(cfg.HueMin), float64(cfg.SatMin), float64(cfg.ValMin), 0),
		upper: gocv.NewScalar(float64(cfg.HueMax), float64(cfg.SatMax), float64(cfg.ValMax), 0),
	}
}

// Perceive implements Perceiver.
func (d *GoCVDetector) Perceive(frame image.Image) TargetEstimate {
	// ImageToMatRGB stores pixels in OpenCV's BGR byte order.
	src, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return TargetEstimate{}
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, d.lower, d.upper, &mask)

	// An empty kernel is OpenCV's 3x3 default.
	kernel := gocv.NewMat()
	defer kernel.Close()
	for i := 0; i < d.cfg.ErodeIterations; i++ {
		gocv.Erode(mask, &mask, kernel)
	}
	for i := 0; i < d.cfg.DilateIterations; i++ {
		gocv.Dilate(mask, &mask, kernel)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best TargetEstimate
	for i := 0; i < contours.Size(); i++ {
		x, _, r := gocv.MinEnclosingCircle(contours.At(i))
		radius := float64(r)
		if radius > best.Radius && radius > d.cfg.MinRadius {
			best = TargetEstimate{Found: true, CenterX: float64(x), Radius: radius}
		}
	}
	return best
}

// GoCVFrameSource captures from a GStreamer appsink pipeline.
type GoCVFrameSource struct {
	capture *gocv.VideoCapture
	store   frameStore
	stop    chan struct{}
	done    chan struct{}
	closer  sync.Once
}

// OpenGoCVFrameSource opens cfg.Pipeline and starts the capture goroutine.
func OpenGoCVFrameSource(cfg CameraConfig, log *zap.Logger) (*GoCVFrameSource, error) {
	capture, err := gocv.VideoCaptureFileWithAPI(cfg.Pipeline, gocv.VideoCaptureGstreamer)
	if err != nil {
		return nil, fmt.Errorf("open capture pipeline: %w", err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("cannot open camera pipeline %q", cfg.Pipeline)
	}
	s := newGoCVFrameSource(capture, log)
	log.Info("camera started", zap.String("pipeline", cfg.Pipeline))
	return s, nil
}

func newGoCVFrameSource(capture *gocv.VideoCapture, log *zap.Logger) *GoCVFrameSource {
	s := &GoCVFrameSource{capture: capture, stop: make(chan struct{}), done: make(chan struct{})}
	go s.readLoop(log)
	return s
}

func (s *GoCVFrameSource) readLoop(log *zap.Logger) {
	defer close(s.done)
	mat := gocv.NewMat()
	defer mat.Close()
	warn := rate.NewLimiter(rate.Every(5*time.Second), 1)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if !s.capture.Read(&mat) || mat.Empty() {
			if warn.Allow() {
				log.Warn("camera read failed; retrying", zap.Uint64("frames", s.store.Seq()))
			}
			select {
			case <-s.stop:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			log.Debug("frame conversion failed", zap.Error(err))
			continue
		}
		s.store.Update(img)
	}
}

// TryAcquire implements FrameSource.
func (s *GoCVFrameSource) TryAcquire() (image.Image, bool) {
	return s.store.Take()
}

// Close stops capturing and releases the pipeline.
func (s *GoCVFrameSource) Close() error {
	var err error
	s.closer.Do(func() {
		close(s.stop)
		<-s.done
		err = s.capture.Close()
	})
	return err
}
