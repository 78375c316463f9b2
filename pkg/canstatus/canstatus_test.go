package canstatus

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"go.einride.tech/can"
	"go.uber.org/zap"

	"github.com/kestrel-team/kestrel/go-escd/pkg/motorctl"
)

func TestEncode(t *testing.T) {
	f := Encode(0x101, Snapshot{
		Voltage:   12.34,
		Current:   -1.5,
		RPM:       4200,
		DutyCycle: 0.5,
		Mode:      motorctl.ModeRPM,
		Running:   true,
		Limits:    motorctl.LimitAccel,
	})

	if f.ID != 0x101 || f.Length != 8 {
		t.Fatalf("frame header wrong: id=0x%X len=%d", f.ID, f.Length)
	}
	if got := binary.LittleEndian.Uint16(f.Data[0:2]); got != 1234 {
		t.Errorf("voltage raw = %d, expected 1234", got)
	}
	if got := int16(binary.LittleEndian.Uint16(f.Data[2:4])); got != -150 {
		t.Errorf("current raw = %d, expected -150", got)
	}
	if got := binary.LittleEndian.Uint16(f.Data[4:6]); got != 4200 {
		t.Errorf("rpm raw = %d, expected 4200", got)
	}
	if got := f.Data[6]; got != 128 {
		t.Errorf("duty raw = %d, expected 128", got)
	}
	wantFlags := uint8(FlagRunning | FlagModeRPM | FlagLimitAccel)
	if f.Data[7] != wantFlags {
		t.Errorf("flags = %08b, expected %08b", f.Data[7], wantFlags)
	}
}

func TestEncodeSaturates(t *testing.T) {
	f := Encode(1, Snapshot{
		Voltage:   10000,
		Current:   -10000,
		RPM:       1_000_000,
		DutyCycle: 2.0,
	})
	if got := binary.LittleEndian.Uint16(f.Data[0:2]); got != 0xFFFF {
		t.Errorf("voltage raw = %d, expected saturation", got)
	}
	if got := int16(binary.LittleEndian.Uint16(f.Data[2:4])); got != -32768 {
		t.Errorf("current raw = %d, expected saturation", got)
	}
	if got := binary.LittleEndian.Uint16(f.Data[4:6]); got != 0xFFFF {
		t.Errorf("rpm raw = %d, expected saturation", got)
	}
	if got := f.Data[6]; got != 255 {
		t.Errorf("duty raw = %d, expected 255", got)
	}
	if f.Data[7] != 0 {
		t.Errorf("flags = %08b, expected none", f.Data[7])
	}
}

type fakeSource struct{}

func (fakeSource) InputVoltageCurrent() (float64, float64) { return 12.0, 0.5 }
func (fakeSource) RPM() uint                               { return 1000 }
func (fakeSource) DutyCycle() float64                      { return 0.25 }
func (fakeSource) Mode() motorctl.Mode                     { return motorctl.ModeOpenLoop }
func (fakeSource) IsRunning() bool                         { return true }
func (fakeSource) LimitMask() motorctl.Limit               { return 0 }

type recordingWriter struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (w *recordingWriter) WriteFrame(_ context.Context, f can.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, f)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func TestPublisherBroadcasts(t *testing.T) {
	writer := &recordingWriter{}
	pub := NewPublisher(fakeSource{}, writer, 0x101, time.Millisecond, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go pub.Loop(ctx, &wg)

	deadline := time.After(time.Second)
	for writer.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("publisher never broadcast")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	wg.Wait()

	writer.mu.Lock()
	defer writer.mu.Unlock()
	f := writer.frames[0]
	if f.ID != 0x101 {
		t.Errorf("frame id = 0x%X, expected 0x101", f.ID)
	}
	if got := binary.LittleEndian.Uint16(f.Data[4:6]); got != 1000 {
		t.Errorf("rpm raw = %d, expected 1000", got)
	}
	if f.Data[7] != FlagRunning {
		t.Errorf("flags = %08b, expected running only", f.Data[7])
	}
}
