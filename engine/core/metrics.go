package core

import "time"

const AVG_COUNT = 30

// FrameMetrics keeps a rolling frame time average and a once-per-second fps figure.
type FrameMetrics struct {
	frameAVGCounter    int
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int
	accumulatedFrameMS float64
	fps                float64
	totalFrames        uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

func (m *FrameMetrics) Update(frameTime time.Duration) {
	// Calculate frame ms average
	frameMS := float64(frameTime) / float64(time.Millisecond)
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := 0; i < AVG_COUNT; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(AVG_COUNT)
	}
	m.frameAVGCounter = (m.frameAVGCounter + 1) % AVG_COUNT

	// Calculate Frames per second.
	m.accumulatedFrameMS += frameMS
	m.frames++
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.totalFrames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) TotalFrames() uint64 {
	return m.totalFrames
}
