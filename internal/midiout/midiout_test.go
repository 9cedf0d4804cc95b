package midiout

import (
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/san-kum/bounce/internal/pitch"
	"github.com/san-kum/bounce/internal/synth"
	"github.com/san-kum/bounce/internal/voice"
)

type pending struct {
	d time.Duration
	f func()
}

type harness struct {
	sent  []midi.Message
	queue []pending
}

func (h *harness) send(m midi.Message) error {
	h.sent = append(h.sent, m)
	return nil
}

func (h *harness) after(d time.Duration, f func()) {
	h.queue = append(h.queue, pending{d, f})
}

func (h *harness) flush() {
	q := h.queue
	h.queue = nil
	for _, p := range q {
		p.f()
	}
}

func TestChannel(t *testing.T) {
	tests := []struct {
		voice int
		want  uint8
	}{
		{0, 0},
		{8, 8},
		{9, 10},
		{14, 15},
		{15, 0},
		{-3, 0},
	}
	for _, tt := range tests {
		if got := Channel(tt.voice); got != tt.want {
			t.Errorf("Channel(%d) = %d, want %d", tt.voice, got, tt.want)
		}
	}
}

func TestVelocity(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{0, 1},
		{-1, 1},
		{0.5, 64},
		{1, 127},
		{3, 127},
	}
	for _, tt := range tests {
		if got := Velocity(tt.in); got != tt.want {
			t.Errorf("Velocity(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPlayNoteSchedulesRelease(t *testing.T) {
	h := &harness{}
	out := New(h.send, WithScheduler(h.after))

	req := synth.NoteRequest{Voice: voice.Voice(2), Note: pitch.At(5), Duration: 150 * time.Millisecond, Velocity: 1}
	if err := out.PlayNote(req); err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(h.sent) != 1 || len(h.queue) != 1 {
		t.Fatalf("expected one note on and one pending release, got %d and %d", len(h.sent), len(h.queue))
	}
	if h.queue[0].d != 150*time.Millisecond {
		t.Errorf("release after %v", h.queue[0].d)
	}

	var ch, key, vel uint8
	if !h.sent[0].GetNoteStart(&ch, &key, &vel) {
		t.Fatalf("expected a note on, got %v", h.sent[0])
	}
	if ch != 2 || key != 69 || vel != 127 {
		t.Errorf("note on ch=%d key=%d vel=%d", ch, key, vel)
	}

	h.flush()
	if len(h.sent) != 2 || !h.sent[1].GetNoteEnd(&ch, &key) || key != 69 {
		t.Errorf("expected a note off for A4, got %v", h.sent)
	}
}

func TestPercussiveUsesDrumChannel(t *testing.T) {
	h := &harness{}
	out := New(h.send, WithScheduler(h.after))
	if err := out.PlayPercussive(0.5); err != nil {
		t.Fatal(err)
	}
	var ch, key, vel uint8
	if !h.sent[0].GetNoteStart(&ch, &key, &vel) || ch != DrumChannel || key != HitKey || vel != 64 {
		t.Errorf("unexpected hit %v", h.sent[0])
	}
}

func TestCloseSilencesAndRejects(t *testing.T) {
	h := &harness{}
	out := New(h.send, WithScheduler(h.after))
	out.PlayNote(synth.NoteRequest{Voice: 1, Note: pitch.Lowest(), Velocity: 0.5})
	if h.queue[0].d != defaultDuration {
		t.Errorf("zero duration should use the default, got %v", h.queue[0].d)
	}

	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	var ch, cc, val uint8
	last := h.sent[len(h.sent)-1]
	if !last.GetControlChange(&ch, &cc, &val) || ch != 1 || cc != allNotesOff {
		t.Errorf("expected all notes off on channel 1, got %v", last)
	}

	before := len(h.sent)
	h.flush()
	if len(h.sent) != before {
		t.Error("release after close should not send")
	}
	if err := out.PlayNote(synth.NoteRequest{Note: pitch.Lowest()}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestSendFailure(t *testing.T) {
	boom := errors.New("unplugged")
	out := New(func(midi.Message) error { return boom }, WithScheduler(func(time.Duration, func()) {}))
	if err := out.PlayPercussive(1); !errors.Is(err, boom) {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}
