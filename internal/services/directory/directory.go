// Package directory resolves device configuration from the external device
// directory service. The HTTP client sits behind a circuit breaker so a
// struggling directory degrades lookups instead of stalling ingestion.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

type Config struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
}

type HTTPDirectory struct {
	base   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger

	// Last good config per device, served while the breaker is open.
	mu    sync.RWMutex
	cache map[string]model.DeviceConfig
}

func NewHTTPDirectory(cfg Config, log *zap.Logger) *HTTPDirectory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 10 * time.Second
	}
	return &HTTPDirectory{
		base:   cfg.BaseURL,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "device-directory",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.BreakerFailures
			},
		}),
		log:   log,
		cache: make(map[string]model.DeviceConfig),
	}
}

func (d *HTTPDirectory) GetConfig(ctx context.Context, deviceID string) (model.DeviceConfig, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.fetch(ctx, deviceID)
	})
	if err != nil {
		if cfg, ok := d.cached(deviceID); ok {
			d.log.Warn("directory unavailable, serving cached config",
				zap.String("device_id", deviceID), zap.Error(err))
			return cfg, nil
		}
		return model.DeviceConfig{}, err
	}

	cfg := res.(model.DeviceConfig)
	d.mu.Lock()
	d.cache[deviceID] = cfg
	d.mu.Unlock()
	return cfg, nil
}

func (d *HTTPDirectory) fetch(ctx context.Context, deviceID string) (model.DeviceConfig, error) {
	url := fmt.Sprintf("%s/devices/%s/config", d.base, deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.DeviceConfig{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return model.DeviceConfig{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.DeviceConfig{}, fmt.Errorf("device %s: %w", deviceID, model.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.DeviceConfig{}, fmt.Errorf("GET %s -> %s", url, resp.Status)
	}

	var cfg model.DeviceConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return model.DeviceConfig{}, fmt.Errorf("decode device config: %w", err)
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = deviceID
	}
	return cfg, nil
}

func (d *HTTPDirectory) cached(deviceID string) (model.DeviceConfig, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.cache[deviceID]
	return cfg, ok
}

// Static is a fixed in-memory directory, used in tests and single-farm
// deployments configured from file.
type Static struct {
	mu      sync.RWMutex
	devices map[string]model.DeviceConfig
}

func NewStatic(devices map[string]model.DeviceConfig) *Static {
	if devices == nil {
		devices = make(map[string]model.DeviceConfig)
	}
	return &Static{devices: devices}
}

func (s *Static) GetConfig(_ context.Context, deviceID string) (model.DeviceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.devices[deviceID]
	if !ok {
		return model.DeviceConfig{}, fmt.Errorf("device %s: %w", deviceID, model.ErrNotFound)
	}
	return cfg, nil
}

func (s *Static) Put(cfg model.DeviceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[cfg.DeviceID] = cfg
}
