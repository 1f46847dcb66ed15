package monitor

import "time"

// State names the phase a cycle is in.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateScanning       State = "scanning"
	StateHistory        State = "history_fetch"
	StateAnalyzing      State = "analyzing"
	StateNotifying      State = "notifying"
	StateStopped        State = "stopped"
)

// Event is one progress report from a running cycle.
type Event struct {
	Stage   State
	Region  string
	Page    int
	Message string
	Count   int
	Time    time.Time
}

// Events exposes the progress feed. The feed is advisory: events are
// dropped rather than ever stalling a scan on a slow consumer.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

func (m *Monitor) emit(e Event) {
	e.Time = time.Now()
	select {
	case m.events <- e:
	default:
	}
}

// State reports the phase the monitor is currently in.
func (m *Monitor) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
	m.emit(Event{Stage: s})
}
