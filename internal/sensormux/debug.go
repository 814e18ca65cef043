package sensormux

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// tailBuffer is how many readings an SSE client may fall behind before
// readings are dropped for it.
const tailBuffer = 64

// AttachDebug registers the manager's debug endpoints under /debug/:
//
//	<name>       JSON status
//	<name>/tail  server-sent events, one per reading, while connected
//
// A tail client is an ordinary listener, so connecting starts the sensor
// and the last disconnect stops it.
func (m *Manager[T]) AttachDebug(debug *tsweb.DebugHandler) {
	debug.KVFunc(m.name, func() any {
		s := m.Status()
		return fmt.Sprintf("%s, %d listeners, monitoring=%t", s.State, s.Listeners, s.Monitoring)
	})

	debug.HandleFunc(m.name, m.name+" status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc(m.name+"/tail", m.serveTail)
}

func (m *Manager[T]) serveTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	ch := make(chan T, tailBuffer)
	listener := NewListenerFunc(func(reading T) error {
		select {
		case ch <- reading:
		default:
			// client is behind; drop rather than stall the delivery loop
			monitoring.Tracef("sensormux: %s: tail %s dropped a reading", m.name, id)
		}
		return nil
	})

	if err := m.AddListener(listener); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrUnsupported) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer func() {
		if err := m.RemoveListener(listener); err != nil {
			monitoring.Opsf("sensormux: %s: tail %s: %v", m.name, id, err)
		}
		monitoring.Diagf("sensormux: %s: tail %s disconnected", m.name, id)
	}()
	monitoring.Diagf("sensormux: %s: tail %s connected", m.name, id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	// Send initial ping to establish connection
	fmt.Fprintf(w, ": %s %s\n\n", m.name, id)
	flusher.Flush()

	for {
		select {
		case reading := <-ch:
			payload, err := json.Marshal(reading)
			if err != nil {
				monitoring.Opsf("sensormux: %s: tail %s: encode reading: %v", m.name, id, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
