package board

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

// AttachDebug registers the board's debug endpoints:
//
//	board               JSON counters and per-sensor monitoring state
//	board/send-command  POST a raw command line to the board
func (b *Board) AttachDebug(debug *tsweb.DebugHandler) {
	debug.KVFunc("board", func() any {
		s := b.Stats()
		return fmt.Sprintf("%d frames, %d unrouted, %d malformed", s.Frames, s.Unrouted, s.Malformed)
	})

	debug.HandleFunc("board", "sensor board status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(b.Stats()); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	})

	// Start and stop commands change IsMonitoring but not the managers: a
	// sensor stopped here stays off until its manager next goes Active.
	debug.HandleSilentFunc("board/send-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := b.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to board", command))
	})
}
