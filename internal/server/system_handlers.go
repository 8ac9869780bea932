package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleSystemHealth reports host resources and database health.
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	databases := make(map[string]interface{})

	checkDB := func(name string, check func() error, stats func() (interface{}, error)) {
		entry := map[string]interface{}{"status": "ok"}
		if err := check(); err != nil {
			entry["status"] = "error"
			entry["error"] = err.Error()
			status = "degraded"
		} else if st, err := stats(); err == nil {
			entry["stats"] = st
		}
		databases[name] = entry
	}

	checkDB("history",
		func() error { return s.historyDB.QuickCheck(r.Context()) },
		func() (interface{}, error) { return s.historyDB.GetStats() },
	)
	checkDB("cache",
		func() error { return s.cacheDB.QuickCheck(r.Context()) },
		func() (interface{}, error) { return s.cacheDB.GetStats() },
	)

	system := map[string]interface{}{}
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		system["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		system["memory_percent"] = memStat.UsedPercent
		system["memory_used_mb"] = memStat.Used / 1024 / 1024
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"databases": databases,
		"system":    system,
	})
}

// handleTriggerSync runs the history sync job immediately.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.syncJob == nil || s.scheduler == nil {
		s.respondError(w, http.StatusServiceUnavailable, "history sync job not configured")
		return
	}

	if err := s.scheduler.RunNow(s.syncJob); err != nil {
		s.respondError(w, http.StatusInternalServerError, "history sync failed: "+err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
