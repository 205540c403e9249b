package playback

import (
	"context"
	"strconv"
	"sync"
)

// FakeDevice records commands in memory. It backs tests and the client's
// offline mode.
type FakeDevice struct {
	mu       sync.Mutex
	state    State
	commands []string
	err      error
}

func NewFakeDevice(state State) *FakeDevice {
	return &FakeDevice{state: state}
}

// Fail makes every following call return err. A nil err restores normal behaviour.
func (d *FakeDevice) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.err = err
}

func (d *FakeDevice) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.commands...)
}

func (d *FakeDevice) Current() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

func (d *FakeDevice) record(command string) error {
	d.commands = append(d.commands, command)
	return d.err
}

func (d *FakeDevice) State(context.Context) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return State{}, d.err
	}

	return d.state, nil
}

func (d *FakeDevice) Play(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record("play"); err != nil {
		return err
	}
	d.state.IsPlaying = true

	return nil
}

func (d *FakeDevice) Pause(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record("pause"); err != nil {
		return err
	}
	d.state.IsPlaying = false

	return nil
}

func (d *FakeDevice) Seek(_ context.Context, positionMs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record("seek:" + strconv.FormatInt(positionMs, 10)); err != nil {
		return err
	}
	d.state.ProgressMs = positionMs

	return nil
}

func (d *FakeDevice) PlayTrack(_ context.Context, uri string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record("track:" + uri); err != nil {
		return err
	}
	d.state = State{TrackURI: uri, IsPlaying: true}

	return nil
}
