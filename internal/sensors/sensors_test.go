// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/fusion"
	"github.com/relabs-tech/compass_level/internal/imu"
	"github.com/relabs-tech/compass_level/internal/sensors/hmc5983"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestMockSourceRoundRobin(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sleeps := 0
	m := &mockSource{
		start:    start,
		now:      func() time.Time { return start },
		sleep:    func(time.Duration) { sleeps++ },
		interval: 10 * time.Millisecond,
	}

	want := []imu.Kind{
		imu.KindAcceleration, imu.KindMagneticField, imu.KindAngularVelocity,
		imu.KindAcceleration,
	}
	for i, k := range want {
		ev, err := m.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if ev.Kind != k {
			t.Fatalf("event %d kind=%s want=%s", i, ev.Kind, k)
		}
		if ev.Accuracy != imu.AccuracyHigh {
			t.Fatalf("event %d accuracy=%s want=High", i, ev.Accuracy)
		}
	}
	if sleeps != 2 {
		t.Fatalf("sleeps=%d want=2", sleeps)
	}
}

func TestMockSourceFieldMatchesHeading(t *testing.T) {
	// At elapsed=π s the rocking term is zero and the device is flat.
	elapsed := math.Pi
	r, ok := fusion.RotationMatrix(mockGravity(elapsed), mockField(elapsed))
	if !ok {
		t.Fatalf("RotationMatrix failed")
	}
	az := fusion.Orientation(r)[0] * 180 / math.Pi
	if az < 0 {
		az += 360
	}
	want := math.Mod(elapsed*30, 360)
	if !approx(az, want, 1e-6) {
		t.Fatalf("heading=%v want=%v", az, want)
	}
}

type fakeAccelGyro struct {
	a, g [3]int16
	err  error
}

func (f *fakeAccelGyro) GetAccelerationX() (int16, error) { return f.a[0], f.err }
func (f *fakeAccelGyro) GetAccelerationY() (int16, error) { return f.a[1], nil }
func (f *fakeAccelGyro) GetAccelerationZ() (int16, error) { return f.a[2], nil }
func (f *fakeAccelGyro) GetRotationX() (int16, error)     { return f.g[0], nil }
func (f *fakeAccelGyro) GetRotationY() (int16, error)     { return f.g[1], nil }
func (f *fakeAccelGyro) GetRotationZ() (int16, error)     { return f.g[2], nil }

func TestIMUSourceConversion(t *testing.T) {
	dev := &fakeAccelGyro{
		a: [3]int16{0, -8192, 8192},
		g: [3]int16{65, 0, -65},
	}
	s := newIMUSource(dev, 1, 1, imu.AccuracyLow, time.Millisecond)
	sleeps := 0
	s.sleep = func(time.Duration) { sleeps++ }

	acc, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if acc.Kind != imu.KindAcceleration || acc.Accuracy != imu.AccuracyLow {
		t.Fatalf("got=%+v want acceleration/Low", acc)
	}
	if !approx(acc.Values.Z, fusion.StandardGravity, 1e-9) || !approx(acc.Values.Y, -fusion.StandardGravity, 1e-9) {
		t.Fatalf("accel=%+v want ±1g on Y/Z", acc.Values)
	}

	gyro, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if gyro.Kind != imu.KindAngularVelocity {
		t.Fatalf("kind=%s want=angular_velocity", gyro.Kind)
	}
	// ±500°/s range: 65.5 counts per °/s
	wantX := 65 / 65.5 * math.Pi / 180
	if !approx(gyro.Values.X, wantX, 1e-12) || !approx(gyro.Values.Z, -wantX, 1e-12) {
		t.Fatalf("gyro=%+v want x=%v", gyro.Values, wantX)
	}
	if sleeps != 1 {
		t.Fatalf("sleeps=%d want=1", sleeps)
	}
}

func TestIMUSourceReadError(t *testing.T) {
	boom := errors.New("spi timeout")
	s := newIMUSource(&fakeAccelGyro{err: boom}, 0, 0, imu.AccuracyHigh, 0)
	if _, err := s.Next(); !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped %v", err, boom)
	}
}

func TestSensitivity(t *testing.T) {
	for code, want := range []float64{16384, 8192, 4096, 2048} {
		if got := AccelCountsPerG(byte(code)); got != want {
			t.Fatalf("AccelCountsPerG(%d)=%v want=%v", code, got, want)
		}
	}
	for code, want := range []float64{131, 65.5, 32.75, 16.375} {
		if got := GyroCountsPerDPS(byte(code)); got != want {
			t.Fatalf("GyroCountsPerDPS(%d)=%v want=%v", code, got, want)
		}
	}
}

type fakeField struct {
	readings [][3]float64
	errs     []error
	i        int
}

func (f *fakeField) Sense() (float64, float64, float64, error) {
	i := f.i
	f.i++
	if i < len(f.errs) && f.errs[i] != nil {
		return 0, 0, 0, f.errs[i]
	}
	r := f.readings[i]
	return r[0], r[1], r[2], nil
}

func TestMagSourceSkipsOverflow(t *testing.T) {
	dev := &fakeField{
		readings: [][3]float64{{}, {12, -3, 40}},
		errs:     []error{hmc5983.ErrOverflow, nil},
	}
	s := &magSource{dev: dev, sleep: func(time.Duration) {}, now: time.Now}

	ev, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != imu.KindMagneticField || ev.Values != (imu.Vec3{X: 12, Y: -3, Z: 40}) {
		t.Fatalf("got=%+v", ev)
	}
	if dev.i != 2 {
		t.Fatalf("reads=%d want=2", dev.i)
	}
}

func TestMagSourceError(t *testing.T) {
	boom := errors.New("nack")
	s := &magSource{dev: &fakeField{errs: []error{boom}}, sleep: func(time.Duration) {}, now: time.Now}
	if _, err := s.Next(); !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped %v", err, boom)
	}
}

const traceYAML = `
name: quarter-turn
interval: 20ms
events:
  - kind: acceleration
    values: {x: 0, y: 0, z: 9.81}
    accuracy: High
  - kind: magnetic_field
    values: {x: -20, y: 0, z: -45}
    accuracy: Medium
  - kind: angular_velocity
    values: {x: 0, y: 1, z: 0.5}
`

func TestReplaySource(t *testing.T) {
	tr, err := ParseTrace([]byte(traceYAML))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	if tr.Name != "quarter-turn" || tr.Interval != 20*time.Millisecond || len(tr.Events) != 3 {
		t.Fatalf("trace=%+v", tr)
	}
	if tr.Events[1].Accuracy != imu.AccuracyMedium {
		t.Fatalf("accuracy=%s want=Medium", tr.Events[1].Accuracy)
	}
	if tr.Events[2].Accuracy != imu.AccuracyUnknown {
		t.Fatalf("accuracy=%s want=Unknown", tr.Events[2].Accuracy)
	}

	src := NewReplaySource(tr, false).(*replaySource)
	var slept time.Duration
	src.sleep = func(d time.Duration) { slept += d }
	for i := 0; i < 3; i++ {
		ev, err := src.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if ev.Kind != tr.Events[i].Kind || ev.Timestamp.IsZero() {
			t.Fatalf("event %d=%+v", i, ev)
		}
	}
	if _, err := src.Next(); err != io.EOF {
		t.Fatalf("err=%v want=EOF", err)
	}
	if slept != 40*time.Millisecond {
		t.Fatalf("slept=%v want=40ms", slept)
	}
}

func TestReplaySourceLoop(t *testing.T) {
	tr, err := ParseTrace([]byte(traceYAML))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	src := NewReplaySource(tr, true).(*replaySource)
	src.sleep = func(time.Duration) {}
	for i := 0; i < 7; i++ {
		ev, err := src.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if want := tr.Events[i%3].Kind; ev.Kind != want {
			t.Fatalf("event %d kind=%s want=%s", i, ev.Kind, want)
		}
	}
}

func TestParseTraceErrors(t *testing.T) {
	cases := map[string]string{
		"empty":    "name: x\nevents: []\n",
		"kind":     "events:\n  - kind: pressure\n",
		"accuracy": "events:\n  - kind: acceleration\n    accuracy: Great\n",
		"syntax":   "events: [\n",
	}
	for name, in := range cases {
		if _, err := ParseTrace([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

type stubSource struct {
	events []imu.Event
	err    error
	closed bool
}

func (s *stubSource) Next() (imu.Event, error) {
	if s.err != nil {
		return imu.Event{}, s.err
	}
	if len(s.events) == 0 {
		return imu.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *stubSource) Close() error { s.closed = true; return nil }

func TestMergeDeliversEverything(t *testing.T) {
	a := &stubSource{events: []imu.Event{{Kind: imu.KindAcceleration}, {Kind: imu.KindAcceleration}, {Kind: imu.KindAcceleration}}}
	m := &stubSource{events: []imu.Event{{Kind: imu.KindMagneticField}}}
	src := Merge(a, m)

	counts := map[imu.Kind]int{}
	for i := 0; i < 4; i++ {
		ev, err := src.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		counts[ev.Kind]++
	}
	if counts[imu.KindAcceleration] != 3 || counts[imu.KindMagneticField] != 1 {
		t.Fatalf("counts=%v want 3 acceleration, 1 magnetic_field", counts)
	}
	if _, err := src.Next(); err != io.EOF {
		t.Fatalf("err=%v want=EOF", err)
	}
}

func TestMergeReportsMemberErrors(t *testing.T) {
	boom := errors.New("bus error")
	bad := &stubSource{err: boom}
	good := &stubSource{events: []imu.Event{{Kind: imu.KindMagneticField}}}
	src := Merge(bad, good)

	sawErr, sawEvent := false, false
	for i := 0; i < 100 && !(sawErr && sawEvent); i++ {
		ev, err := src.Next()
		switch {
		case errors.Is(err, boom):
			sawErr = true
		case err != nil:
			t.Fatalf("Next: %v", err)
		case ev.Kind == imu.KindMagneticField:
			sawEvent = true
		}
	}
	if !sawErr || !sawEvent {
		t.Fatalf("sawErr=%v sawEvent=%v want both", sawErr, sawEvent)
	}

	if err := src.(io.Closer).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bad.closed || !good.closed {
		t.Fatalf("members not closed: bad=%v good=%v", bad.closed, good.closed)
	}
	if _, err := src.Next(); err != io.EOF {
		t.Fatalf("Next after Close: err=%v want=EOF", err)
	}
}

// stalledSource blocks in Next until closed, like a hung bus read.
type stalledSource struct {
	once    sync.Once
	release chan struct{}
}

func (s *stalledSource) Next() (imu.Event, error) {
	<-s.release
	return imu.Event{}, io.EOF
}

func (s *stalledSource) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

func TestMergeStalledMemberDoesNotBlockOthers(t *testing.T) {
	stalled := &stalledSource{release: make(chan struct{})}
	mag := &stubSource{events: []imu.Event{{Kind: imu.KindMagneticField}, {Kind: imu.KindMagneticField}}}
	src := Merge(stalled, mag)

	got := make(chan imu.Kind, 2)
	go func() {
		for i := 0; i < 2; i++ {
			ev, err := src.Next()
			if err != nil {
				close(got)
				return
			}
			got <- ev.Kind
		}
	}()
	for i := 0; i < 2; i++ {
		select {
		case k, ok := <-got:
			if !ok || k != imu.KindMagneticField {
				t.Fatalf("event %d: kind=%s ok=%v", i, k, ok)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d held up by stalled member", i)
		}
	}

	src.(io.Closer).Close()
	if _, err := src.Next(); err != io.EOF {
		t.Fatalf("err=%v want=EOF", err)
	}
}

type steadyField struct{}

func (steadyField) Sense() (float64, float64, float64, error) { return -20, 0, -45, nil }

func TestMergeKeepsEachSensorRate(t *testing.T) {
	const (
		imuInterval = 20 * time.Millisecond
		magInterval = 25 * time.Millisecond
		window      = 500 * time.Millisecond
	)
	ag := newIMUSource(&fakeAccelGyro{a: [3]int16{0, 0, 16384}}, 0, 0, imu.AccuracyHigh, imuInterval)
	mag := &magSource{dev: steadyField{}, interval: magInterval, sleep: time.Sleep, now: time.Now}
	src := Merge(ag, mag)
	defer src.(io.Closer).Close()

	counts := map[imu.Kind]int{}
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		ev, err := src.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		counts[ev.Kind]++
	}

	// Read one after the other the two would share a 45ms round, about
	// 11 samples each in the window.
	if got, min := counts[imu.KindAcceleration], 18; got < min {
		t.Fatalf("acceleration events=%d want>=%d (IMU rate ~%d)", got, min, int(window/imuInterval))
	}
	if got, min := counts[imu.KindMagneticField], 15; got < min {
		t.Fatalf("magnetic events=%d want>=%d (mag rate ~%d)", got, min, int(window/magInterval))
	}
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	src, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open mock: %v", err)
	}
	if _, ok := src.(*mockSource); !ok {
		t.Fatalf("got %T want *mockSource", src)
	}

	path := filepath.Join(t.TempDir(), "trace.yaml")
	if err := os.WriteFile(path, []byte(traceYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.SensorSource = config.SourceReplay
	cfg.ReplayPath = path
	if _, err := Open(cfg, nil); err != nil {
		t.Fatalf("Open replay: %v", err)
	}

	cfg.SensorSource = config.SourceMQTT
	if _, err := Open(cfg, nil); err == nil {
		t.Fatalf("Open mqtt without client: expected error")
	}

	cfg.SensorSource = "gps"
	if _, err := Open(cfg, nil); err == nil {
		t.Fatalf("Open unknown: expected error")
	}
}

func TestLoadReplayTestdata(t *testing.T) {
	tr, err := LoadReplay(filepath.Join("testdata", "desk_turn.yaml"))
	if err != nil {
		t.Fatalf("LoadReplay: %v", err)
	}
	if tr.Name != "desk-turn" || len(tr.Events) != 6 {
		t.Fatalf("trace=%q events=%d", tr.Name, len(tr.Events))
	}

	// the last field sample is a quarter turn to the east
	r, ok := fusion.RotationMatrix(tr.Events[0].Values, tr.Events[3].Values)
	if !ok {
		t.Fatalf("RotationMatrix failed")
	}
	if az := fusion.Orientation(r)[0] * 180 / math.Pi; !approx(az, 90, 1e-9) {
		t.Fatalf("azimuth=%v want=90", az)
	}

	if _, err := LoadReplay(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
