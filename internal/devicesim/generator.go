package devicesim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

const (
	// gainPerMin: moisture gain in percent points per minute while the
	// valve is open.
	gainPerMin = 0.6

	// defaultSeedPct when SoilGrids is unavailable.
	defaultSeedPct = 30.0

	// Single fetch at startup, never per tick.
	soilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query?lat=%f&lon=%f&property=wv0010"
)

// Generator keeps the simulated soil state and derives one telemetry
// snapshot per tick. Moisture decays while the valve is closed and recovers
// while water is flowing.
type Generator struct {
	mu          sync.Mutex
	seeded      bool
	last        time.Time
	moisture    float64 // percent
	battery     float64 // percent
	decayPerMin float64
	httpClient  *http.Client
	rng         *rand.Rand
}

func NewGenerator(decayPerMin float64) *Generator {
	return &Generator{
		decayPerMin: math.Max(0, decayPerMin),
		battery:     100,
		httpClient:  &http.Client{Timeout: 8 * time.Second},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SeedFromSoilGrids does one startup fetch for a realistic initial moisture.
// Failures fall back to the default seed.
func (g *Generator) SeedFromSoilGrids(ctx context.Context, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seeded {
		return
	}

	seed := defaultSeedPct
	if lat != 0 || lon != 0 {
		if m, err := g.fetchSoilMoisture(ctx, lat, lon); err == nil && m >= 0 {
			seed = m * 100
		}
	}
	g.moisture = clampPct(seed)
	g.last = time.Now().UTC()
	g.seeded = true
}

// Next advances the internal state and returns the reading for this tick.
func (g *Generator) Next(valveOpen bool) model.TelemetrySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	if !g.seeded {
		g.moisture = defaultSeedPct
		g.last = now
		g.seeded = true
	}

	dtMin := now.Sub(g.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	if valveOpen {
		g.moisture = clampPct(g.moisture + gainPerMin*dtMin)
	} else {
		g.moisture = clampPct(g.moisture - g.decayPerMin*dtMin)
	}
	g.last = now

	g.battery = math.Max(0, g.battery-0.002*dtMin)

	temp := diurnalTemperature(now) + g.rng.Float64()*2 - 1
	humidity := clampPct(70 - temp/2 + g.rng.Float64()*10 - 5)

	return model.TelemetrySnapshot{
		SoilMoisture:   math.Round(g.moisture),
		Temperature:    math.Round(temp*10) / 10,
		Humidity:       math.Round(humidity),
		Rainfall:       0,
		Evaporation:    etoHargreaves(temp-6, temp+6),
		Battery:        math.Round(g.battery),
		SignalStrength: "good",
		Timestamp:      now,
	}
}

// Battery reports the current charge percentage.
func (g *Generator) Battery() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.battery
}

// diurnalTemperature is a day curve peaking mid-afternoon.
func diurnalTemperature(now time.Time) float64 {
	h := float64(now.Hour()) + float64(now.Minute())/60
	return 22 + 8*math.Sin((h-9)/24*2*math.Pi)
}

// etoHargreaves estimates daily reference evapotranspiration in mm from the
// day's temperature range.
func etoHargreaves(tmin, tmax float64) float64 {
	const ra = 0.408
	tmean := (tmin + tmax) / 2
	et0 := 0.0023 * (tmean + 17.8) * math.Sqrt(math.Max(tmax-tmin, 0)) * ra
	return math.Round(et0*100) / 100
}

func (g *Generator) fetchSoilMoisture(ctx context.Context, lat, lon float64) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(soilGridsURL, lat, lon), nil)
	if err != nil {
		return -1, err
	}
	req.Header.Set("User-Agent", "agrosense-device-simulator/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return -1, fmt.Errorf("soilgrids HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return -1, err
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return -1, err
	}
	if m := extractMoisture(parsed); m >= 0 {
		return normalizeWV(m), nil
	}
	return -1, fmt.Errorf("soilgrids: moisture field not found")
}

// extractMoisture walks the common response shape:
// {"properties":{"layers":[{"depths":[{"values":{"Q0.5":0.27}}]}]}}
func extractMoisture(m map[string]any) float64 {
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return -1
	}
	layers, ok := props["layers"].([]any)
	if !ok || len(layers) == 0 {
		return -1
	}
	l0, ok := layers[0].(map[string]any)
	if !ok {
		return -1
	}
	depths, ok := l0["depths"].([]any)
	if !ok || len(depths) == 0 {
		return -1
	}
	d0, ok := depths[0].(map[string]any)
	if !ok {
		return -1
	}
	vals, ok := d0["values"].(map[string]any)
	if !ok {
		return -1
	}
	for _, k := range []string{"Q0.5", "mean", "Q0.95", "Q0.05"} {
		if f, ok := vals[k].(float64); ok {
			return f
		}
	}
	return -1
}

// normalizeWV maps SoilGrids wv values to [0..1]; many layers come as
// integers in thousandths of m3/m3 (420 means 0.420).
func normalizeWV(x float64) float64 {
	if x > 1.5 {
		x = x / 1000
	}
	return math.Max(0, math.Min(1, x))
}

func clampPct(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}
