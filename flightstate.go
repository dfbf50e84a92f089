package aerostat

import "sync"

// FlightState is the append-only record of a flight. One goroutine appends,
// any number read. Frames are copied in and out, so nothing outside can
// reach the stored history. Frames and the track are updated under the same lock so a
// reader never sees one grown without the other.
type FlightState struct {
	mu     sync.RWMutex
	frames []TelemetryFrame
	track  []TrackPoint
}

func NewFlightState() *FlightState {
	return &FlightState{}
}

// Append records a frame. The track only grows when the frame has a fix.
func (fs *FlightState) Append(frame TelemetryFrame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.frames = append(fs.frames, frame.clone())
	if frame.HasFix() {
		fs.track = append(fs.track, TrackPoint{
			Latitude:  frame.Latitude,
			Longitude: frame.Longitude,
			Frame:     len(fs.frames) - 1,
		})
	}
}

// Latest returns the most recently appended frame.
func (fs *FlightState) Latest() (TelemetryFrame, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if len(fs.frames) == 0 {
		return TelemetryFrame{}, false
	}
	return fs.frames[len(fs.frames)-1].clone(), true
}

// LatestIndexed is Latest plus the frame's index in the series, so a
// periodic reader can tell whether it has seen the frame before.
func (fs *FlightState) LatestIndexed() (TelemetryFrame, int, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n := len(fs.frames)
	if n == 0 {
		return TelemetryFrame{}, -1, false
	}
	return fs.frames[n-1].clone(), n - 1, true
}

// Len returns the number of frames and track points.
func (fs *FlightState) Len() (frames int, track int) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.frames), len(fs.track)
}

// Snapshot copies every series at a single point in time.
func (fs *FlightState) Snapshot() FlightStateView {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	view := FlightStateView{
		Frames: make([]TelemetryFrame, len(fs.frames)),
		Track:  make([]TrackPoint, len(fs.track)),
	}
	for i := range fs.frames {
		view.Frames[i] = fs.frames[i].clone()
	}
	copy(view.Track, fs.track)
	return view
}

// FlightStateView is an immutable copy of a FlightState. Track may be
// shorter than Frames; index positions through Frames, not by zipping.
type FlightStateView struct {
	Frames []TelemetryFrame
	Track  []TrackPoint
}

func (v FlightStateView) Altitudes() []float64 {
	return v.series(func(f *TelemetryFrame) float64 { return f.Altitude })
}

func (v FlightStateView) DischargeVolumes() []float64 {
	return v.series(func(f *TelemetryFrame) float64 { return f.DischargeVolume })
}

func (v FlightStateView) GasVolumes() []float64 {
	return v.series(func(f *TelemetryFrame) float64 { return f.GasVolume })
}

// Times returns seconds since midnight for each frame.
func (v FlightStateView) Times() []int {
	ret := make([]int, len(v.Frames))
	for i := range v.Frames {
		ret[i] = v.Frames[i].SecondsSinceMidnight
	}
	return ret
}

func (v FlightStateView) series(fn func(*TelemetryFrame) float64) []float64 {
	ret := make([]float64, len(v.Frames))
	for i := range v.Frames {
		ret[i] = fn(&v.Frames[i])
	}
	return ret
}
