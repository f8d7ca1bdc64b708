package rover

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// VizConfig controls the optional expvar endpoint used for live plotting.
type VizConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

var (
	vizOnce sync.Once
	vizVars *expvar.Map
)

// publishedVars registers the "rover" expvar map once per process.
func publishedVars() *expvar.Map {
	vizOnce.Do(func() {
		vizVars = expvar.NewMap("rover")
	})
	return vizVars
}

// VizMetrics exposes live loop values via expvar. A nil *VizMetrics is a
// valid no-op.
type VizMetrics struct {
	vars   *expvar.Map
	server *http.Server
}

// StartViz starts an HTTP server exposing /debug/vars and /healthz.
func StartViz(cfg VizConfig, log *zap.Logger) (*VizMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7070"
	}

	metrics := newVizMetrics()
	metrics.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           metrics.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metrics.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("viz server error", zap.Error(err))
		}
	}()
	log.Info("viz listening", zap.String("addr", cfg.Addr))
	return metrics, nil
}

func newVizMetrics() *VizMetrics {
	v := &VizMetrics{vars: publishedVars()}
	for _, key := range []string{
		"mode", "auto_active", "ticks",
		"target_found", "target_cx", "target_radius",
		"steering_us", "throttle_dir", "throttle_duty",
	} {
		if v.vars.Get(key) == nil {
			v.vars.Set(key, new(expvar.Float))
		}
	}
	return v
}

// Routes returns the HTTP handler served by StartViz.
func (v *VizMetrics) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/debug/vars", expvar.Handler())
	return r
}

// Close stops the HTTP server.
func (v *VizMetrics) Close() {
	if v == nil || v.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = v.server.Shutdown(ctx)
}

// UpdateState publishes the mode, latch and tick count.
func (v *VizMetrics) UpdateState(s ModeState, ticks uint64) {
	if v == nil {
		return
	}
	v.set("mode", float64(s.Mode))
	v.set("auto_active", boolFloat(s.AutoActive))
	v.set("ticks", float64(ticks))
}

// UpdateTarget publishes the latest perception result.
func (v *VizMetrics) UpdateTarget(est TargetEstimate) {
	if v == nil {
		return
	}
	v.set("target_found", boolFloat(est.Found))
	v.set("target_cx", est.CenterX)
	v.set("target_radius", est.Radius)
}

// UpdateSteering publishes the last servo pulse.
func (v *VizMetrics) UpdateSteering(pulse int) {
	if v == nil {
		return
	}
	v.set("steering_us", float64(pulse))
}

// UpdateThrottle publishes the last motor command.
func (v *VizMetrics) UpdateThrottle(cmd ThrottleCommand) {
	if v == nil {
		return
	}
	v.set("throttle_dir", float64(cmd.Direction))
	v.set("throttle_duty", float64(cmd.Duty))
}

// set updates an expvar.Float stored inside the map.
func (v *VizMetrics) set(key string, value float64) {
	if f, ok := v.vars.Get(key).(*expvar.Float); ok {
		f.Set(value)
		return
	}
	f := new(expvar.Float)
	f.Set(value)
	v.vars.Set(key, f)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
