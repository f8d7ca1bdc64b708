package rover

import (
	"image"
	"image/color"
)

// targetColor sits inside the default band: HSV (38, 211, 230).
var targetColor = color.RGBA{R: 180, G: 230, B: 40, A: 255}

func newFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func drawDisk(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	b := img.Bounds()
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r+r {
				continue
			}
			p := image.Pt(cx+dx, cy+dy)
			if p.In(b) {
				img.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

func frameWithDisk(cx, cy, r int) *image.RGBA {
	img := newFrame(320, 240)
	drawDisk(img, cx, cy, r, targetColor)
	return img
}

type actuatorCall struct {
	Kind  string
	Pulse int
	Dir   Direction
	Duty  int
}

func steer(pulse int) actuatorCall { return actuatorCall{Kind: "steer", Pulse: pulse} }

func throttle(dir Direction, duty int) actuatorCall {
	return actuatorCall{Kind: "throttle", Dir: dir, Duty: duty}
}

type recordingActuator struct {
	calls  []actuatorCall
	closed bool
}

func (a *recordingActuator) SetSteering(pulseUS int) { a.calls = append(a.calls, steer(pulseUS)) }

func (a *recordingActuator) SetThrottle(dir Direction, duty int) {
	a.calls = append(a.calls, throttle(dir, duty))
}

func (a *recordingActuator) Close() error {
	a.closed = true
	return nil
}

func (a *recordingActuator) reset() { a.calls = nil }

type queuedInputs struct {
	events []InputEvent
	closed bool
}

func (q *queuedInputs) push(evs ...InputEvent) { q.events = append(q.events, evs...) }

func (q *queuedInputs) TryRead() (InputEvent, bool) {
	if len(q.events) == 0 {
		return nil, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

func (q *queuedInputs) Close() error {
	q.closed = true
	return nil
}

// repeatingFrames hands out the same frame on every call while enabled.
type repeatingFrames struct {
	frame    image.Image
	acquired int
	closed   bool
}

func (f *repeatingFrames) TryAcquire() (image.Image, bool) {
	if f.frame == nil {
		return nil, false
	}
	f.acquired++
	return f.frame, true
}

func (f *repeatingFrames) Close() error {
	f.closed = true
	return nil
}

type stubPerceiver struct {
	est   TargetEstimate
	calls int
}

func (p *stubPerceiver) Perceive(image.Image) TargetEstimate {
	p.calls++
	return p.est
}
