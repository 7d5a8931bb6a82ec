package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/seenimoa/chainpulse/internal/config"
	"github.com/seenimoa/chainpulse/internal/dashboard"
	"github.com/seenimoa/chainpulse/internal/infra"
)

// configMu serialises writes to the config file.
var configMu sync.Mutex

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config     *config.Config `json:"config"`
	ConfigFile string         `json:"config_file"` // path to the active config file
}

// handleGetConfig returns the current (running) configuration.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:     s.config(),
			ConfigFile: config.ConfigFilePath(),
		},
	})
}

// handleUpdateConfig merges the provided partial configuration into the running
// config, persists it to disk, applies the analytics thresholds and the ingest
// rate limit immediately, and returns the updated config. Listener, store and
// logging changes take effect on restart.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	configMu.Lock()
	defer configMu.Unlock()

	current := s.config()

	// Decode onto a copy of the running config so omitted fields, including
	// bools, keep their current values.
	incoming := *current
	incoming.API.CORSOrigins = nil // decoding would reuse the shared backing array
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	next := *current
	mergeConfig(&next, &incoming)
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}

	// Persist to disk.
	cfgPath := config.ConfigFilePath()
	if err := config.SaveToFile(&next, cfgPath); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config: "+err.Error())
		return
	}

	s.cfgMu.Lock()
	s.cfg = &next
	s.cfgMu.Unlock()

	s.svc.UpdateSettings(dashboard.SettingsFromConfig(&next))
	if next.API.RateLimitRPS != current.API.RateLimitRPS || next.API.RateLimitBurst != current.API.RateLimitBurst {
		s.limiter.Store(infra.NewKeyedLimiter(next.API.RateLimitRPS, next.API.RateLimitBurst))
	}
	s.logger.Info().Str("config_file", cfgPath).Msg("Configuration updated")

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:     &next,
			ConfigFile: cfgPath,
		},
	})
}

// mergeConfig copies non-zero/non-empty values from src into dst.
func mergeConfig(dst, src *config.Config) {
	// API
	if src.API.Host != "" {
		dst.API.Host = src.API.Host
	}
	if src.API.Port != 0 {
		dst.API.Port = src.API.Port
	}
	if len(src.API.CORSOrigins) > 0 {
		dst.API.CORSOrigins = src.API.CORSOrigins
	}
	if src.API.RateLimitRPS != 0 {
		dst.API.RateLimitRPS = src.API.RateLimitRPS
	}
	if src.API.RateLimitBurst != 0 {
		dst.API.RateLimitBurst = src.API.RateLimitBurst
	}
	if src.API.RequestTimeout != 0 {
		dst.API.RequestTimeout = src.API.RequestTimeout
	}

	// Store
	if src.Store.Driver != "" {
		dst.Store.Driver = src.Store.Driver
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}

	// Signal
	if src.Signal.OIPercentThreshold != 0 {
		dst.Signal.OIPercentThreshold = src.Signal.OIPercentThreshold
	}
	if src.Signal.PCRThreshold != 0 {
		dst.Signal.PCRThreshold = src.Signal.PCRThreshold
	}
	// UseVolume is a bool; always applied from incoming
	dst.Signal.UseVolume = src.Signal.UseVolume

	// Flow
	if src.Flow.TopN != 0 {
		dst.Flow.TopN = src.Flow.TopN
	}
	if src.Flow.MinAbsChange != 0 {
		dst.Flow.MinAbsChange = src.Flow.MinAbsChange
	}

	// Cache
	if src.Cache.TTL != 0 {
		dst.Cache.TTL = src.Cache.TTL
	}
	if src.Cache.CleanupInterval != 0 {
		dst.Cache.CleanupInterval = src.Cache.CleanupInterval
	}

	// Logging
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	// File is a bool; always applied from incoming
	dst.Logging.File = src.Logging.File
	if src.Logging.FilePath != "" {
		dst.Logging.FilePath = src.Logging.FilePath
	}
	if src.Logging.MaxSize != 0 {
		dst.Logging.MaxSize = src.Logging.MaxSize
	}
	if src.Logging.MaxBackups != 0 {
		dst.Logging.MaxBackups = src.Logging.MaxBackups
	}
	if src.Logging.MaxAge != 0 {
		dst.Logging.MaxAge = src.Logging.MaxAge
	}
}
