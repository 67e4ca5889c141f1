package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-kit/log"

	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/units"
)

const (
	groundAAPIBase      = "https://www.airnowapi.org/aq/observation/latLong/current/"
	groundARadiusBatch  = 4 // radii checked in parallel per batch
	groundAStartMiles   = 4
	groundAMaxMiles     = 50
)

// groundARadii builds the expanding search list 4, 5, 6, ..., 50.
func groundARadii() []int {
	radii := make([]int, 0, groundAMaxMiles-groundAStartMiles+1)
	for r := groundAStartMiles; r <= groundAMaxMiles; r++ {
		radii = append(radii, r)
	}
	return radii
}

type groundAObservation struct {
	ParameterName   string  `json:"ParameterName"`
	AQI             int     `json:"AQI"`
	Latitude        float64 `json:"Latitude"`
	Longitude       float64 `json:"Longitude"`
	ReportingArea   string  `json:"ReportingArea"`
}

// GroundStationAAdapter implements the US-biased AQI network adapter: an
// expanding-radius search, closest station per pollutant, AQI values
// converted to concentration via the inverse breakpoint table.
type GroundStationAAdapter struct {
	Logger     log.Logger
	HTTPClient *http.Client
	APIKey     string
}

func NewGroundStationAAdapter(logger log.Logger, apiKey string) *GroundStationAAdapter {
	return &GroundStationAAdapter{
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
	}
}

func (g *GroundStationAAdapter) Name() model.SourceID { return model.SourceGroundA }

func (g *GroundStationAAdapter) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
	return timed(g.Logger, model.SourceGroundA, func() (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
		var diag Diagnostics
		radii := groundARadii()

		for i := 0; i < len(radii); i += groundARadiusBatch {
			end := i + groundARadiusBatch
			if end > len(radii) {
				end = len(radii)
			}
			batch := radii[i:end]

			observations, attempts, errs := g.fetchBatch(ctx, loc, batch)
			diag.Attempts += attempts
			diag.Errors = append(diag.Errors, errs...)

			if len(observations) > 0 {
				return closestPerPollutant(observations, loc), diag
			}
		}

		diag.Errors = append(diag.Errors, ErrNoDataInRange)
		return map[model.Pollutant]model.RawPollutantMeasurement{}, diag
	})
}

// fetchBatch issues one request per radius in the batch concurrently and
// returns every observation from every radius that answered.
func (g *GroundStationAAdapter) fetchBatch(ctx context.Context, loc model.Location, radii []int) ([]groundAObservation, int, []error) {
	var (
		mu      sync.Mutex
		all     []groundAObservation
		errs    []error
		attempts int
		wg      sync.WaitGroup
	)

	for _, radius := range radii {
		radius := radius
		wg.Add(1)
		go func() {
			defer wg.Done()
			obs, n, err := g.fetchRadius(ctx, loc, radius)
			mu.Lock()
			defer mu.Unlock()
			attempts += n
			if err != nil {
				errs = append(errs, err)
				return
			}
			all = append(all, obs...)
		}()
	}
	wg.Wait()
	return all, attempts, errs
}

func (g *GroundStationAAdapter) fetchRadius(ctx context.Context, loc model.Location, radiusMiles int) ([]groundAObservation, int, error) {
	var observations []groundAObservation
	attempts, err := doWithRetry(g.Logger, model.SourceGroundA, func() error {
		u, perr := url.Parse(groundAAPIBase)
		if perr != nil {
			return perr
		}
		values := url.Values{}
		values.Set("format", "application/json")
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("distance", fmt.Sprintf("%d", radiusMiles))
		values.Set("API_KEY", g.APIKey)
		u.RawQuery = values.Encode()

		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if rerr != nil {
			return rerr
		}
		resp, derr := g.HTTPClient.Do(req)
		if derr != nil {
			return fmt.Errorf("%w: %v", ErrTransientUpstream, derr)
		}
		defer resp.Body.Close()

		if statusErr := classifyHTTPStatus(resp.StatusCode); statusErr != nil {
			return statusErr
		}

		body, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal(body, &observations)
	})
	return observations, attempts, err
}

// closestPerPollutant keeps, for each pollutant, the observation from the
// nearest station, converting its AQI to a concentration.
func closestPerPollutant(observations []groundAObservation, loc model.Location) map[model.Pollutant]model.RawPollutantMeasurement {
	type best struct {
		obs      groundAObservation
		distance float64
	}
	bestByPollutant := make(map[model.Pollutant]best)

	for _, obs := range observations {
		pollutant, ok := normalizeGroundPollutant(obs.ParameterName)
		if !ok {
			continue
		}
		dist := model.HaversineKM(loc.Latitude, loc.Longitude, obs.Latitude, obs.Longitude)
		if current, exists := bestByPollutant[pollutant]; !exists || dist < current.distance {
			bestByPollutant[pollutant] = best{obs: obs, distance: dist}
		}
	}

	results := make(map[model.Pollutant]model.RawPollutantMeasurement)
	for pollutant, b := range bestByPollutant {
		conc, err := units.InverseBreakpoint(pollutant, b.obs.AQI)
		if err != nil {
			continue
		}
		results[pollutant] = model.RawPollutantMeasurement{
			Pollutant:  pollutant,
			Value:      conc,
			Units:      model.CanonicalUnit(pollutant),
			SourceTag:  model.SourceGroundA,
			Quality:    model.QualityGood,
			ObservedAt: time.Now().UTC(),
		}
	}
	return results
}

func normalizeGroundPollutant(name string) (model.Pollutant, bool) {
	switch name {
	case "PM2.5", "PM25":
		return model.PM25, true
	case "PM10":
		return model.PM10, true
	case "O3", "OZONE":
		return model.O3, true
	case "NO2":
		return model.NO2, true
	case "SO2":
		return model.SO2, true
	case "CO":
		return model.CO, true
	default:
		return "", false
	}
}
