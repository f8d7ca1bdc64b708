//go:build !gocv

package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGoCVBackendsNeedBuildTag(t *testing.T) {
	_, err := NewPerceiver(PerceptionConfig{Backend: PerceptionBackendGoCV})
	assert.ErrorContains(t, err, "gocv tag")

	_, err = NewFrameSource(CameraConfig{Source: CameraSourceGoCV}, zap.NewNop())
	assert.ErrorContains(t, err, "gocv tag")
}
