package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/netfleet/fleetwatch/internal/models"
	"github.com/netfleet/fleetwatch/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, map[string]string{"service": "fleetwatch"})
}

func (s *Server) handleLatestResults(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err)
		return
	}

	results, err := s.results.Latest(limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondOK(w, r, results)
}

// handleCurrentResults returns the most recent result per address.
func (s *Server) handleCurrentResults(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.results.LatestByAddress())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		respondError(w, r, http.StatusBadRequest, errors.New("date query parameter is required (YYYYMMDD)"))
		return
	}

	results, err := s.results.ReadDate(date)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err)
		return
	}
	respondOK(w, r, results)
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	partitions, err := s.results.Partitions()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondOK(w, r, partitions)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.results.Rebuild(); err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondOK(w, r, map[string]string{"message": "result store rebuilt"})
}

func (s *Server) handleTimeoutList(w http.ResponseWriter, r *http.Request) {
	min, err := queryInt(r, "min_consecutive", 1)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err)
		return
	}
	respondOK(w, r, s.timeouts.List(min))
}

func (s *Server) handleTimeoutSummary(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.timeouts.Summary())
}

func (s *Server) handleTimeoutCritical(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.timeouts.Critical())
}

func (s *Server) handleTimeoutReset(w http.ResponseWriter, r *http.Request) {
	if err := s.timeouts.Reset(); err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondOK(w, r, map[string]string{"message": "timeout tracking reset"})
}

type serviceStatusResponse struct {
	Scheduler models.SchedulerStatus `json:"scheduler"`
	Host      models.HostMetrics     `json:"host"`
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, serviceStatusResponse{
		Scheduler: s.scheduler.Status(),
		Host:      collectHostMetrics(),
	})
}

// handleServiceStart treats starting an already running scheduler as a no-op
// that reports the current state.
func (s *Server) handleServiceStart(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Start(); err != nil && !errors.Is(err, services.ErrAlreadyRunning) {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondOK(w, r, s.scheduler.Status())
}

func (s *Server) handleServiceStop(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Stop(); err != nil && !errors.Is(err, services.ErrNotRunning) {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondOK(w, r, s.scheduler.Status())
}

// collectHostMetrics samples the host's CPU and memory. Failures leave the
// fields unset rather than failing the status request.
func collectHostMetrics() models.HostMetrics {
	var metrics models.HostMetrics

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		metrics.CPUPercent = &percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usedMB := float64(vm.Used) / 1024 / 1024
		metrics.MemoryPercent = &vm.UsedPercent
		metrics.MemoryUsedMB = &usedMB
	}

	return metrics
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q", key, raw)
	}
	return v, nil
}
