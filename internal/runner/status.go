package runner

import (
	"sort"
	"time"

	"runnerd/pkg/types"
)

// HandleSnapshot is a read-only projection of one handle.
type HandleSnapshot struct {
	ID            string
	Config        types.ModelConfig
	State         HandleState
	ActiveSession string
	ActiveTokens  int
	LastUsed      time.Time
}

// Snapshot returns a read-only view of h.
func (h *Handle) Snapshot() HandleSnapshot {
	h.mu.Lock()
	snap := HandleSnapshot{ID: h.id, Config: h.cfg, State: h.state, LastUsed: h.lastUsed}
	s := h.active
	h.mu.Unlock()
	if s != nil {
		snap.ActiveSession = s.id
		_, snap.ActiveTokens, _ = s.snapshot()
	}
	return snap
}

// Subscriptions returns the number of event subscriptions the runner
// currently holds on the bridge channel.
func (r *Runner) Subscriptions() int { return r.subs.count() }

// Status builds the /status payload.
func (r *Runner) Status() types.StatusResponse {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	resp := types.StatusResponse{
		LoadsTotal:       r.loadsTotal,
		GenerationsTotal: r.generationsTotal,
		LastError:        r.lastErr,
	}
	r.mu.RUnlock()

	resp.Handles = make([]types.HandleStatus, 0, len(handles))
	for _, h := range handles {
		snap := h.Snapshot()
		resp.Handles = append(resp.Handles, types.HandleStatus{
			ID:            snap.ID,
			ModelPath:     snap.Config.ModelPath,
			TokenizerType: string(snap.Config.TokenizerType),
			State:         string(snap.State),
			ActiveSession: snap.ActiveSession,
			ActiveTokens:  snap.ActiveTokens,
			LastUsed:      snap.LastUsed.Unix(),
		})
	}
	sort.Slice(resp.Handles, func(i, j int) bool { return resp.Handles[i].ID < resp.Handles[j].ID })
	resp.Subscriptions = r.subs.count()
	resp.UptimeSeconds = int64(time.Since(r.startTime) / time.Second)
	resp.ServerTimeUnix = time.Now().Unix()
	return resp
}
