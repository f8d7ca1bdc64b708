package rover

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type pigpioRequest struct {
	Cmd    uint32
	P1, P2 uint32
}

// fakePigpiod answers the pigpiod socket protocol and records every request.
type fakePigpiod struct {
	ln     net.Listener
	mu     sync.Mutex
	reqs   []pigpioRequest
	status func(pigpioRequest) int32
	delay  func(pigpioRequest) time.Duration
	conns  int
	done   chan struct{}
	once   sync.Once
}

func startFakePigpiod(t *testing.T, status func(pigpioRequest) int32) *fakePigpiod {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if status == nil {
		status = func(pigpioRequest) int32 { return 0 }
	}
	f := &fakePigpiod{ln: ln, status: status, done: make(chan struct{})}
	go f.serve()
	t.Cleanup(f.stop)
	return f
}

// stop closes the listener and waits for every connection handler to return.
func (f *fakePigpiod) stop() {
	f.once.Do(func() {
		_ = f.ln.Close()
		<-f.done
	})
}

func (f *fakePigpiod) serve() {
	defer close(f.done)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns++
		f.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.handle(conn)
		}()
	}
}

func (f *fakePigpiod) handle(conn net.Conn) {
	defer conn.Close()
	var buf [pigpioFrameSize]byte
	for {
		if _, err := io.ReadFull(conn, buf[:]); err != nil {
			return
		}
		req := pigpioRequest{
			Cmd: binary.LittleEndian.Uint32(buf[0:4]),
			P1:  binary.LittleEndian.Uint32(buf[4:8]),
			P2:  binary.LittleEndian.Uint32(buf[8:12]),
		}
		f.mu.Lock()
		f.reqs = append(f.reqs, req)
		delay := f.delay
		f.mu.Unlock()
		if delay != nil {
			time.Sleep(delay(req))
		}
		binary.LittleEndian.PutUint32(buf[12:16], uint32(f.status(req)))
		if _, err := conn.Write(buf[:]); err != nil {
			return
		}
	}
}

func (f *fakePigpiod) connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns
}

func (f *fakePigpiod) take() []pigpioRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.reqs
	f.reqs = nil
	return reqs
}

func pigpioConfig(addr string) ActuatorConfig {
	cfg := DefaultConfig().Actuator
	cfg.Addr = addr
	return cfg
}

func TestPigpioActuator(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := startFakePigpiod(t, nil)
	a, err := DialPigpio(pigpioConfig(srv.ln.Addr().String()), ServoConfig{Center: 1850, Range: 500}, zap.NewNop())
	require.NoError(t, err)

	want := []pigpioRequest{
		{pigpioCmdModes, 18, 1},
		{pigpioCmdModes, 23, 1},
		{pigpioCmdModes, 24, 1},
		{pigpioCmdModes, 25, 1},
		{pigpioCmdServo, 25, 1850},
	}
	if diff := cmp.Diff(want, srv.take()); diff != "" {
		t.Fatalf("startup sequence mismatch (-want +got):\n%s", diff)
	}

	a.SetThrottle(DirectionForward, 240)
	a.SetSteering(2094)
	a.SetThrottle(DirectionReverse, 62)
	a.SetThrottle(DirectionStop, 0)
	want = []pigpioRequest{
		{pigpioCmdWrite, 23, 0},
		{pigpioCmdWrite, 24, 1},
		{pigpioCmdPWM, 18, 240},
		{pigpioCmdServo, 25, 2094},
		{pigpioCmdWrite, 23, 1},
		{pigpioCmdWrite, 24, 0},
		{pigpioCmdPWM, 18, 62},
		{pigpioCmdPWM, 18, 0},
		{pigpioCmdWrite, 23, 0},
		{pigpioCmdWrite, 24, 0},
	}
	if diff := cmp.Diff(want, srv.take()); diff != "" {
		t.Errorf("command sequence mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, a.Close())
	srv.stop()
}

func TestPigpioStartupFailure(t *testing.T) {
	srv := startFakePigpiod(t, func(req pigpioRequest) int32 {
		if req.Cmd == pigpioCmdModes && req.P1 == 24 {
			return -3
		}
		return 0
	})

	_, err := DialPigpio(pigpioConfig(srv.ln.Addr().String()), ServoConfig{Center: 1850, Range: 500}, zap.NewNop())
	require.Error(t, err)
	var perr *PigpioError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, &PigpioError{Cmd: pigpioCmdModes, Code: -3}, perr)
	assert.Contains(t, err.Error(), "gpio 24")
}

func TestPigpioCommandFailureIsNotFatal(t *testing.T) {
	srv := startFakePigpiod(t, func(req pigpioRequest) int32 {
		if req.Cmd == pigpioCmdPWM {
			return -8
		}
		return 0
	})
	a, err := DialPigpio(pigpioConfig(srv.ln.Addr().String()), ServoConfig{Center: 1850, Range: 500}, zap.NewNop())
	require.NoError(t, err)
	srv.take()

	a.SetThrottle(DirectionForward, 100)
	a.SetSteering(1900)
	assert.Len(t, srv.take(), 4)
	require.NoError(t, a.Close())
}

func TestDialPigpioUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := pigpioConfig(addr)
	cfg.DialTimeout = 200 * time.Millisecond
	_, err = NewActuator(cfg, ServoConfig{Center: 1850, Range: 500}, zap.NewNop())
	assert.ErrorContains(t, err, "connect pigpiod")
}

func TestPigpioReconnectsAfterTimeout(t *testing.T) {
	srv := startFakePigpiod(t, func(req pigpioRequest) int32 {
		if req.Cmd == pigpioCmdPWM {
			return -8
		}
		return 0
	})
	cfg := pigpioConfig(srv.ln.Addr().String())
	cfg.IOTimeout = 50 * time.Millisecond
	a, err := DialPigpio(cfg, ServoConfig{Center: 1850, Range: 500}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	srv.mu.Lock()
	srv.delay = func(req pigpioRequest) time.Duration {
		if req.Cmd == pigpioCmdServo && req.P2 == 2000 {
			return 150 * time.Millisecond
		}
		return 0
	}
	srv.mu.Unlock()

	err = a.command(pigpioCmdServo, 25, 2000)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "got %v", err)
	assert.True(t, netErr.Timeout())

	// The late reply must not be read as the status of the next command.
	require.NoError(t, a.command(pigpioCmdWrite, 23, 0))
	err = a.command(pigpioCmdPWM, 18, 100)
	assert.Equal(t, &PigpioError{Cmd: pigpioCmdPWM, Code: -8}, err)
	assert.Equal(t, 2, srv.connections())
}
