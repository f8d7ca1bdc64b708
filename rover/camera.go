package rover

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Camera sources.
const (
	CameraSourcePipe   = "pipe"
	CameraSourceReplay = "replay"
	CameraSourceGoCV   = "gocv"
	CameraSourceNone   = "none"
)

// defaultCameraCommand writes packed RGB24 frames to stdout and lets the
// queue drop stale buffers.
const defaultCameraCommand = "gst-launch-1.0 -q libcamerasrc ! " +
	"video/x-raw,width=320,height=240,format=RGB ! " +
	"queue max-size-buffers=1 leaky=downstream ! " +
	"videoconvert ! video/x-raw,format=RGB ! fdsink fd=1 sync=false"

// defaultCameraPipeline is the appsink pipeline used by the gocv source.
const defaultCameraPipeline = "libcamerasrc ! video/x-raw,width=320,height=240,format=RGB ! " +
	"queue max-size-buffers=1 leaky=downstream ! " +
	"videoconvert ! video/x-raw,format=BGR ! appsink drop=true sync=false"

// CameraConfig selects and configures the frame source.
type CameraConfig struct {
	Source   string  `mapstructure:"source"`
	Width    int     `mapstructure:"width"`
	Height   int     `mapstructure:"height"`
	Command  string  `mapstructure:"command"`  // pipe: shell command emitting raw RGB24
	Pipeline string  `mapstructure:"pipeline"` // gocv: GStreamer appsink pipeline
	Dir      string  `mapstructure:"dir"`      // replay: directory of images
	FPS      float64 `mapstructure:"fps"`      // replay: frame rate

	// StartTimeout bounds the wait for the first pipe frame; 0 disables the check.
	StartTimeout time.Duration `mapstructure:"start_timeout"`
}

// openGoCVFrameSource is set by the gocv build.
var openGoCVFrameSource func(CameraConfig, *zap.Logger) (FrameSource, error)

// NewFrameSource opens the configured frame source. The "none" source yields
// a nil FrameSource, which disables autonomous driving.
func NewFrameSource(cfg CameraConfig, log *zap.Logger) (FrameSource, error) {
	switch cfg.Source {
	case CameraSourcePipe:
		src, err := StartPipeFrameSource(cfg, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case CameraSourceReplay:
		src, err := OpenReplayFrameSource(cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	case CameraSourceGoCV:
		if openGoCVFrameSource == nil {
			return nil, errors.New("camera source gocv: binary built without the gocv tag")
		}
		return openGoCVFrameSource(cfg, log)
	case CameraSourceNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}

// StreamFrameSource decodes packed RGB24 frames from a byte stream on its own
// goroutine and exposes only the newest one.
type StreamFrameSource struct {
	r       io.ReadCloser
	cmd     *exec.Cmd
	width   int
	height  int
	log     *zap.Logger
	store   frameStore
	ready   chan struct{}
	done    chan struct{}
	closing atomic.Bool
	closer  sync.Once

	// Set by readLoop before done is closed when the camera process exited on its own.
	waited  bool
	waitErr error
}

// NewStreamFrameSource starts reading width x height RGB24 frames from r.
func NewStreamFrameSource(r io.ReadCloser, width, height int) *StreamFrameSource {
	return newStreamFrameSource(r, nil, width, height, zap.NewNop())
}

func newStreamFrameSource(r io.ReadCloser, cmd *exec.Cmd, width, height int, log *zap.Logger) *StreamFrameSource {
	s := &StreamFrameSource{
		r:      r,
		cmd:    cmd,
		width:  width,
		height: height,
		log:    log,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// StartPipeFrameSource runs cfg.Command through the shell and streams its
// stdout. The shell execs the command so Close can kill it directly. With a
// positive cfg.StartTimeout it fails unless the first frame arrives in time.
func StartPipeFrameSource(cfg CameraConfig, log *zap.Logger) (*StreamFrameSource, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("camera.command is empty")
	}
	cmd := exec.Command("sh", "-c", "exec "+cfg.Command)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start camera command: %w", err)
	}

	s := newStreamFrameSource(stdout, cmd, cfg.Width, cfg.Height, log)
	if err := s.awaitFirstFrame(cfg.StartTimeout); err != nil {
		_ = s.Close()
		if s.waitErr != nil {
			return nil, fmt.Errorf("%w: %v", err, s.waitErr)
		}
		return nil, err
	}
	log.Info("camera started", zap.Int("pid", cmd.Process.Pid), zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
	return s, nil
}

func (s *StreamFrameSource) awaitFirstFrame(timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		select {
		case <-s.ready:
			return nil
		default:
			return errors.New("camera stream ended before the first frame")
		}
	case <-timer.C:
		return fmt.Errorf("no camera frame within %s", timeout)
	}
}

func (s *StreamFrameSource) readLoop() {
	defer close(s.done)
	buf := make([]byte, s.width*s.height*3)
	first := true
	for {
		if _, err := io.ReadFull(s.r, buf); err != nil {
			if s.closing.Load() {
				return
			}
			fields := []zap.Field{zap.Error(err), zap.Uint64("frames", s.store.Seq())}
			if s.cmd != nil {
				s.waitErr = s.cmd.Wait()
				s.waited = true
				fields = append(fields, zap.NamedError("exit", s.waitErr))
			}
			s.log.Warn("camera stream ended", fields...)
			return
		}
		s.store.Update(rgb24ToRGBA(buf, s.width, s.height))
		if first {
			close(s.ready)
			first = false
		}
	}
}

// TryAcquire returns the newest frame not yet returned.
func (s *StreamFrameSource) TryAcquire() (image.Image, bool) {
	return s.store.Take()
}

// Frames returns how many complete frames have been read.
func (s *StreamFrameSource) Frames() uint64 {
	return s.store.Seq()
}

// Close stops the reader and the camera process.
func (s *StreamFrameSource) Close() error {
	var err error
	s.closer.Do(func() {
		s.closing.Store(true)
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if err = s.r.Close(); errors.Is(err, os.ErrClosed) {
			err = nil
		}
		<-s.done
		if s.cmd != nil && !s.waited {
			s.waitErr = s.cmd.Wait()
			s.waited = true
			s.log.Debug("camera process exited", zap.NamedError("exit", s.waitErr))
		}
	})
	return err
}

func rgb24ToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

var replayExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// ReplayFrameSource cycles through still images at a fixed frame rate, for
// bench testing without a camera.
type ReplayFrameSource struct {
	frames   []image.Image
	interval time.Duration
	next     int
	last     time.Time
	now      func() time.Time
}

// OpenReplayFrameSource decodes every image in cfg.Dir, resized to the
// configured frame size.
func OpenReplayFrameSource(cfg CameraConfig) (*ReplayFrameSource, error) {
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && replayExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no images in %s", cfg.Dir)
	}

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := LoadFrame(filepath.Join(cfg.Dir, name), cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return NewReplayFrameSource(frames, cfg.FPS), nil
}

// NewReplayFrameSource cycles through frames. fps <= 0 yields a frame on
// every call.
func NewReplayFrameSource(frames []image.Image, fps float64) *ReplayFrameSource {
	var interval time.Duration
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &ReplayFrameSource{frames: frames, interval: interval, now: time.Now}
}

// LoadFrame decodes an image file, resizing it to width x height if needed.
func LoadFrame(path string, width, height int) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("load frame %s: %w", path, err)
	}
	b := img.Bounds()
	if width > 0 && height > 0 && (b.Dx() != width || b.Dy() != height) {
		return imaging.Resize(img, width, height, imaging.Linear), nil
	}
	return imaging.Clone(img), nil
}

// TryAcquire returns the next frame once the frame interval has elapsed.
func (r *ReplayFrameSource) TryAcquire() (image.Image, bool) {
	if len(r.frames) == 0 {
		return nil, false
	}
	now := r.now()
	if r.interval > 0 && !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return nil, false
	}
	r.last = now
	frame := r.frames[r.next]
	r.next = (r.next + 1) % len(r.frames)
	return frame, true
}

// Close implements FrameSource.
func (r *ReplayFrameSource) Close() error {
	r.frames = nil
	return nil
}
