package synth

import "errors"

// Fanout sends each request to every backend and joins their errors.
type Fanout []Synthesizer

func (f Fanout) PlayNote(req NoteRequest) error {
	var errs []error
	for _, s := range f {
		if err := s.PlayNote(req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) PlayPercussive(intensity float64) error {
	var errs []error
	for _, s := range f {
		if err := s.PlayPercussive(intensity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
