package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is a snapshot of host resource usage.
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// StatusPayload is the full service status, served once by GET /status
// and pushed periodically over the websocket stream.
type StatusPayload struct {
	InstanceID    string      `json:"instance_id"`
	Timestamp     time.Time   `json:"timestamp"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Pool          PoolStatus  `json:"pool"`
	System        SystemStats `json:"system"`
	CacheEnabled  bool        `json:"cache_enabled"`
}

// PoolStatus mirrors the session pool counters.
type PoolStatus struct {
	Active    int `json:"active"`
	Idle      int `json:"idle"`
	Max       int `json:"max"`
	WaitQueue int `json:"wait_queue"`
}

func systemStats() SystemStats {
	var stats SystemStats
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	return stats
}

func (s *Server) statusPayload() StatusPayload {
	pool := s.client.PoolStats()
	return StatusPayload{
		InstanceID:    s.cfg.Server.InstanceID,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Pool: PoolStatus{
			Active:    pool.Active,
			Idle:      pool.Idle,
			Max:       pool.Max,
			WaitQueue: pool.WaitQueue,
		},
		System:       systemStats(),
		CacheEnabled: s.cache.Enabled(),
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusPayload())
}

// handleStatusStream upgrades to a websocket and pushes the status
// payload every StatusInterval until the client goes away.
func (s *Server) handleStatusStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.Server.StatusInterval)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.statusPayload()); err != nil {
		return
	}
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(s.statusPayload()); err != nil {
				return
			}
		}
	}
}
