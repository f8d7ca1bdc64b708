package rover

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func encodeJSEvent(ms uint32, value int16, typ, number uint8) []byte {
	b := make([]byte, jsEventSize)
	binary.LittleEndian.PutUint32(b[0:4], ms)
	binary.LittleEndian.PutUint16(b[4:6], uint16(value))
	b[6] = typ
	b[7] = number
	return b
}

func TestDecodeJSEvent(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		want   InputEvent
		wantOK bool
	}{
		{"button press", encodeJSEvent(10, 1, jsEventButton, 0), ButtonEvent{ID: 0, Pressed: true}, true},
		{"button release", encodeJSEvent(11, 0, jsEventButton, 4), ButtonEvent{ID: 4}, true},
		{"initial button", encodeJSEvent(0, 1, jsEventButton|jsEventInit, 0), ButtonEvent{ID: 0, Pressed: true, Initial: true}, true},
		{"axis", encodeJSEvent(12, -32767, jsEventAxis, 1), AxisEvent{ID: 1, Value: -32767}, true},
		{"initial axis", encodeJSEvent(0, 16000, jsEventAxis|jsEventInit, 3), AxisEvent{ID: 3, Value: 16000, Initial: true}, true},
		{"unknown type", encodeJSEvent(13, 1, 0x04, 0), nil, false},
		{"short read", encodeJSEvent(13, 1, jsEventButton, 0)[:6], nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeJSEvent(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
