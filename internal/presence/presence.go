// Package presence tracks the connection status of the local participant and
// whether the partner is in the room.
package presence

import (
	"context"
	"log/slog"
	"sync"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

type Event string

const (
	EventConnect       Event = "connect"
	EventConnected     Event = "connected"
	EventFailed        Event = "failed"
	EventDropped       Event = "dropped"
	EventResumed       Event = "resumed"
	EventGaveUp        Event = "gave-up"
	EventLeft          Event = "left"
	EventPartnerJoined Event = "partner-joined"
	EventPartnerLeft   Event = "partner-left"
	// EventLatency records a latency sample and never changes the status.
	EventLatency Event = "latency"
)

var transitions = map[Status]map[Event]Status{
	StatusDisconnected: {
		EventConnect: StatusConnecting,
	},
	StatusConnecting: {
		EventConnected: StatusConnected,
		EventFailed:    StatusDisconnected,
		EventLeft:      StatusDisconnected,
	},
	StatusConnected: {
		EventDropped:       StatusReconnecting,
		EventLeft:          StatusDisconnected,
		EventPartnerJoined: StatusConnected,
		EventPartnerLeft:   StatusConnected,
	},
	StatusReconnecting: {
		EventResumed: StatusConnected,
		EventGaveUp:  StatusDisconnected,
		EventLeft:    StatusDisconnected,
	},
}

// Transition reports the status reached from s on ev, or false if ev is not
// allowed in s.
func Transition(s Status, ev Event) (Status, bool) {
	next, ok := transitions[s][ev]
	return next, ok
}

type Partner struct {
	DisplayName string
	AvatarURL   string
}

type State struct {
	Status             Status
	RoomId             string
	PartnerPresent     bool
	Partner            *Partner
	EstimatedLatencyMs int64
}

type input struct {
	event     Event
	roomId    string
	partner   *Partner
	latencyMs int64
}

type Option func(*input)

// WithRoom sets the room on connected and resumed.
func WithRoom(roomId string) Option {
	return func(in *input) { in.roomId = roomId }
}

// WithPartner marks the partner present with the given identity. It applies to
// connected, resumed and partner-joined.
func WithPartner(partner Partner) Option {
	return func(in *input) { in.partner = &partner }
}

func WithLatency(ms int64) Option {
	return func(in *input) { in.latencyMs = ms }
}

// Machine applies events one at a time on the goroutine running Run.
type Machine struct {
	inputs  chan input
	updates chan State
	logger  *slog.Logger

	mu    sync.RWMutex
	state State
}

func New(logger *slog.Logger) *Machine {
	return &Machine{
		inputs:  make(chan input, 32),
		updates: make(chan State, 32),
		logger:  logger,
		state:   State{Status: StatusDisconnected},
	}
}

// Fire queues ev. It blocks only while the input buffer is full.
func (m *Machine) Fire(ctx context.Context, ev Event, opts ...Option) {
	in := input{event: ev}
	for _, opt := range opts {
		opt(&in)
	}

	select {
	case m.inputs <- in:
	case <-ctx.Done():
	}
}

// Updates publishes every state change. Slow readers miss intermediate states;
// Snapshot is always current.
func (m *Machine) Updates() <-chan State {
	return m.updates
}

func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-m.inputs:
			m.apply(in)
		}
	}
}

func (m *Machine) apply(in input) {
	m.mu.Lock()
	prev := m.state
	next, ok := m.reduce(prev, in)
	if ok {
		m.state = next
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("ignored presence event", "status", prev.Status, "event", in.event)
		return
	}

	select {
	case m.updates <- next:
	default:
	}
}

func (m *Machine) reduce(s State, in input) (State, bool) {
	if in.event == EventLatency {
		s.EstimatedLatencyMs = in.latencyMs
		return s, true
	}

	status, ok := Transition(s.Status, in.event)
	if !ok {
		return s, false
	}
	s.Status = status

	switch status {
	case StatusReconnecting, StatusDisconnected:
		s.PartnerPresent = false
		s.Partner = nil
		if status == StatusDisconnected {
			s.RoomId = ""
		}
		return s, true
	}

	switch in.event {
	case EventConnected, EventResumed:
		if in.roomId != "" {
			s.RoomId = in.roomId
		}
		s.PartnerPresent = in.partner != nil
		s.Partner = in.partner
	case EventPartnerJoined:
		s.PartnerPresent = true
		s.Partner = in.partner
		if s.Partner == nil {
			s.Partner = &Partner{}
		}
	case EventPartnerLeft:
		s.PartnerPresent = false
		s.Partner = nil
	}

	return s, true
}
