package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/airwatch-project/airwatch/internal/model"
)

// modelWorkerPoolSize bounds concurrent per-pollutant requests against the
// chemistry model endpoint, per §4.2/§5's "bounded worker pool of 5".
const modelWorkerPoolSize = 5

// modelSpecies are the single-species chemistry pollutants, one HTTP call
// each.
var modelSpecies = []string{"no2", "o3", "co", "so2"}

// pm25ComponentSpecies are the seven aerosol species the model exposes
// separately; PM2.5 is their sum, one HTTP call per species.
var pm25ComponentSpecies = []string{"so4", "nit", "nh4", "bc", "oc", "dst1", "sala"}

// pm25MinComponents is the minimum number of the seven PM2.5 sub-species
// that must be present for the summed value to be accepted.
const pm25MinComponents = 5

const (
	modelChemURLFormat = "https://fluid.nccs.nasa.gov/cfapi/fcast/chm/v1/%s/%.1fx%.1f/latest/"
	modelMetURLFormat  = "https://fluid.nccs.nasa.gov/cfapi/fcast/met/v1/%.1fx%.1f/latest/"
)

// AtmosphericModelAdapter fetches GEOS-CF-like chemistry forecasts,
// issuing one HTTP request per pollutant concurrently through a bounded
// pool, plus a concurrent meteorology request for the weather context.
type AtmosphericModelAdapter struct {
	Logger     log.Logger
	HTTPClient *http.Client
}

func NewAtmosphericModelAdapter(logger log.Logger) *AtmosphericModelAdapter {
	return &AtmosphericModelAdapter{
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *AtmosphericModelAdapter) Name() model.SourceID { return model.SourceModel }

type modelTimeSeriesResponse struct {
	Time   []string             `json:"time"`
	Values map[string][]float64 `json:"values"`
}

func (a *AtmosphericModelAdapter) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
	return timed(a.Logger, model.SourceModel, func() (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
		var diag Diagnostics
		results := make(map[model.Pollutant]model.RawPollutantMeasurement)
		pm25Components := make(map[string]float64)

		sem := make(chan struct{}, modelWorkerPoolSize)
		var wg sync.WaitGroup
		var mu sync.Mutex

		fetchOne := func(species string, report func(value float64)) {
			defer wg.Done()
			defer func() { <-sem }()

			value, attempts, err := a.fetchSpecies(ctx, loc, species, now)
			mu.Lock()
			defer mu.Unlock()
			diag.Attempts += attempts
			if err != nil {
				diag.Errors = append(diag.Errors, err)
				return
			}
			report(value)
		}

		for _, species := range modelSpecies {
			species := species
			wg.Add(1)
			sem <- struct{}{}
			go fetchOne(species, func(value float64) {
				switch species {
				case "no2":
					results[model.NO2] = rawMeasurement(model.NO2, value, model.UnitPPB, model.SourceModel, now)
				case "o3":
					results[model.O3] = rawMeasurement(model.O3, value, model.UnitPPB, model.SourceModel, now)
				case "so2":
					results[model.SO2] = rawMeasurement(model.SO2, value, model.UnitPPB, model.SourceModel, now)
				case "co":
					// ppbv -> ppm.
					results[model.CO] = rawMeasurement(model.CO, value/1000.0, model.UnitPPM, model.SourceModel, now)
				}
			})
		}

		for _, component := range pm25ComponentSpecies {
			component := component
			wg.Add(1)
			sem <- struct{}{}
			go fetchOne(component, func(value float64) {
				pm25Components[component] = value
			})
		}
		wg.Wait()

		if len(pm25Components) >= pm25MinComponents {
			var sum float64
			for _, v := range pm25Components {
				sum += v
			}
			results[model.PM25] = rawMeasurement(model.PM25, sum, model.UnitUGM3, model.SourceModel, now)
		} else if len(pm25Components) > 0 {
			diag.FilterReasons = append(diag.FilterReasons, fmt.Sprintf("pm25 components %d < required %d", len(pm25Components), pm25MinComponents))
		}

		return results, diag
	})
}

// fetchSpecies issues the retried HTTP request for one species and picks
// the timestamp closest to now in UTC.
func (a *AtmosphericModelAdapter) fetchSpecies(ctx context.Context, loc model.Location, species string, now time.Time) (float64, int, error) {
	var value float64
	attempts, err := doWithRetry(a.Logger, model.SourceModel, func() error {
		u := fmt.Sprintf(modelChemURLFormat, species, loc.Latitude, loc.Longitude)
		resp, ferr := a.get(ctx, u)
		if ferr != nil {
			return ferr
		}
		v, perr := nearestTimestampValue(resp, species, now)
		if perr != nil {
			return perr
		}
		value = v
		return nil
	})
	return value, attempts, err
}

// FetchWeather issues the concurrent meteorology request for T2M, TPREC,
// CLDTT, U10M, V10M.
func (a *AtmosphericModelAdapter) FetchWeather(ctx context.Context, loc model.Location, now time.Time) (*model.WeatherContext, Diagnostics) {
	var diag Diagnostics
	diag.Source = model.SourceModel
	start := time.Now()
	defer func() { diag.LatencyMS = time.Since(start).Milliseconds() }()

	var resp *modelTimeSeriesResponse
	attempts, err := doWithRetry(a.Logger, model.SourceModel, func() error {
		u := fmt.Sprintf(modelMetURLFormat, loc.Latitude, loc.Longitude)
		r, ferr := a.get(ctx, u)
		if ferr != nil {
			return ferr
		}
		resp = r
		return nil
	})
	diag.Attempts = attempts
	if err != nil {
		level.Warn(a.Logger).Log("msg", "model meteorology fetch failed", "err", err)
		diag.Errors = append(diag.Errors, err)
		return nil, diag
	}

	t2m, _ := nearestTimestampValue(resp, "T2M", now)
	tprec, _ := nearestTimestampValue(resp, "TPREC", now)
	cldtt, _ := nearestTimestampValue(resp, "CLDTT", now)
	u10m, _ := nearestTimestampValue(resp, "U10M", now)
	v10m, _ := nearestTimestampValue(resp, "V10M", now)

	windSpeed := math.Hypot(u10m, v10m)
	_ = tprec
	_ = cldtt

	return &model.WeatherContext{
		TemperatureC: t2m,
		WindSpeedMS:  windSpeed,
		Source:       model.SourceModel,
	}, diag
}

func (a *AtmosphericModelAdapter) get(ctx context.Context, fullURL string) (*modelTimeSeriesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if statusErr := classifyHTTPStatus(resp.StatusCode); statusErr != nil {
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed modelTimeSeriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// nearestTimestampValue selects the index whose parsed ISO8601 timestamp is
// closest to now (UTC), returning the matching value.
func nearestTimestampValue(resp *modelTimeSeriesResponse, key string, now time.Time) (float64, error) {
	values, ok := resp.Values[key]
	if !ok || len(values) == 0 || len(values) != len(resp.Time) {
		return 0, fmt.Errorf("sources: model response missing series %q", key)
	}

	nowUTC := now.UTC()
	bestIdx := -1
	var bestDelta time.Duration
	for i, ts := range resp.Time {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		delta := parsed.UTC().Sub(nowUTC)
		if delta < 0 {
			delta = -delta
		}
		if bestIdx == -1 || delta < bestDelta {
			bestIdx = i
			bestDelta = delta
		}
	}
	if bestIdx == -1 {
		return 0, fmt.Errorf("sources: no parseable timestamps for %q", key)
	}
	return values[bestIdx], nil
}

func rawMeasurement(p model.Pollutant, value float64, unit model.Unit, source model.SourceID, observedAt time.Time) model.RawPollutantMeasurement {
	return model.RawPollutantMeasurement{
		Pollutant:  p,
		Value:      value,
		Units:      unit,
		SourceTag:  source,
		Quality:    model.QualityGood,
		ObservedAt: observedAt,
	}
}
