package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gordonklaus/portaudio"

	"github.com/san-kum/bounce/internal/synth"
)

// Output plays a beep stream on the default portaudio device.
type Output struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	src    beep.Streamer
	buf    [][2]float64
	logger *slog.Logger
}

// OpenOutput starts the default output device and opens gate once audio is
// flowing. Until then the engine's guard drops playback requests.
func OpenOutput(src beep.Streamer, sampleRate int, gate *synth.Gate, logger *slog.Logger) (*Output, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio init: %w", err)
	}

	o := &Output{src: src, buf: make([][2]float64, BufferSize), logger: logger}
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(sampleRate), BufferSize, o.process)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	o.stream = stream
	if gate != nil {
		gate.Open()
	}
	logger.Info("audio output started", "rate", sampleRate, "buffer", BufferSize)
	return o, nil
}

func (o *Output) process(out [][]float32) {
	n := len(out[0])
	if cap(o.buf) < n {
		o.buf = make([][2]float64, n)
	}
	buf := o.buf[:n]
	clear(buf)
	o.src.Stream(buf)

	for i := range buf {
		out[0][i] = float32(buf[i][0])
		if len(out) > 1 {
			out[1][i] = float32(buf[i][1])
		}
	}
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stream == nil {
		return nil
	}
	err := o.stream.Stop()
	if cerr := o.stream.Close(); err == nil {
		err = cerr
	}
	o.stream = nil
	portaudio.Terminate()
	return err
}
