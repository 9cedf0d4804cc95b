// Package midiout sends engine notes to a MIDI output port, one channel per
// voice, with drum hits on the General MIDI percussion channel.
package midiout

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/san-kum/bounce/internal/synth"
)

const (
	DrumChannel = 9
	// HitKey is the General MIDI side stick.
	HitKey = 37

	hitLength       = 30 * time.Millisecond
	allNotesOff     = 123
	defaultDuration = 200 * time.Millisecond
)

var (
	ErrNoPorts = errors.New("midiout: no MIDI output ports")
	ErrClosed  = errors.New("midiout: output closed")
)

// SendFunc delivers one message to a port.
type SendFunc func(midi.Message) error

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func())

type Option func(*Output)

func WithLogger(l *slog.Logger) Option {
	return func(o *Output) { o.logger = l }
}

// WithScheduler replaces time.AfterFunc for note-off scheduling.
func WithScheduler(after AfterFunc) Option {
	return func(o *Output) { o.after = after }
}

// Output is a synth.Synthesizer backed by a MIDI port.
type Output struct {
	mu     sync.Mutex
	send   SendFunc
	after  AfterFunc
	logger *slog.Logger
	used   map[uint8]bool
	closed bool

	port drivers.Out
	drv  *rtmididrv.Driver
}

func New(send SendFunc, opts ...Option) *Output {
	o := &Output{
		send:   send,
		logger: slog.New(slog.DiscardHandler),
		used:   make(map[uint8]bool),
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open connects to the output port whose name contains name, or the first
// port when name is empty.
func Open(name string, opts ...Option) (*Output, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("open midi driver: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}
	port, err := choosePort(outs, name)
	if err != nil {
		drv.Close()
		return nil, err
	}
	if err := port.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open midi port %q: %w", port.String(), err)
	}
	send, err := midi.SendTo(port)
	if err != nil {
		port.Close()
		drv.Close()
		return nil, fmt.Errorf("midi sender: %w", err)
	}

	o := New(send, opts...)
	o.port = port
	o.drv = drv
	o.logger.Info("midi output connected", "port", port.String())
	return o, nil
}

// Ports lists the names of the available output ports.
func Ports() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("open midi driver: %w", err)
	}
	defer drv.Close()
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

func choosePort(outs []drivers.Out, name string) (drivers.Out, error) {
	if len(outs) == 0 {
		return nil, ErrNoPorts
	}
	if name == "" {
		return outs[0], nil
	}
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), strings.ToLower(name)) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("midiout: no output port matching %q", name)
}

// Channel maps a voice onto a melodic channel, skipping the drum channel.
func Channel(v int) uint8 {
	ch := v % 15
	if ch < 0 {
		ch = 0
	}
	if ch >= DrumChannel {
		ch++
	}
	return uint8(ch)
}

// Velocity maps a 0..1 velocity onto 1..127.
func Velocity(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 1
	}
	if v >= 1 {
		return 127
	}
	return uint8(1 + math.Round(v*126))
}

func (o *Output) PlayNote(req synth.NoteRequest) error {
	ch := Channel(int(req.Voice))
	key := uint8(min(max(req.Note.Midi, 0), 127))
	dur := req.Duration
	if dur <= 0 {
		dur = defaultDuration
	}
	return o.strike(ch, key, Velocity(req.Velocity), dur)
}

func (o *Output) PlayPercussive(intensity float64) error {
	return o.strike(DrumChannel, HitKey, Velocity(intensity), hitLength)
}

func (o *Output) strike(ch, key, vel uint8, dur time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if err := o.send(midi.NoteOn(ch, key, vel)); err != nil {
		return fmt.Errorf("note on: %w", err)
	}
	o.used[ch] = true
	o.after(dur, func() { o.release(ch, key) })
	return nil
}

func (o *Output) release(ch, key uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if err := o.send(midi.NoteOff(ch, key)); err != nil {
		o.logger.Warn("note off failed", "channel", ch, "key", key, "err", err)
	}
}

// Close silences every channel that played and closes the port.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	var errs []error
	for ch := range o.used {
		if err := o.send(midi.ControlChange(ch, allNotesOff, 0)); err != nil {
			errs = append(errs, err)
		}
	}
	if o.port != nil {
		errs = append(errs, o.port.Close())
	}
	if o.drv != nil {
		errs = append(errs, o.drv.Close())
	}
	return errors.Join(errs...)
}
