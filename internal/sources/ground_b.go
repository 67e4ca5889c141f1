package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"

	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/units"
)

const groundBAPIFormat = "https://api.waqi.info/feed/geo:%f;%f/?token=%s"

// gridOffsets lists the nine points of the grid search (center, 4
// cardinals, 4 diagonals at +/-0.5 degrees).
var gridOffsets = []struct{ dLat, dLon float64 }{
	{0, 0},
	{0.5, 0}, {-0.5, 0}, {0, 0.5}, {0, -0.5},
	{0.5, 0.5}, {0.5, -0.5}, {-0.5, 0.5}, {-0.5, -0.5},
}

type groundBResponse struct {
	Status string        `json:"status"`
	Data   groundBFeed   `json:"data"`
}

type groundBFeed struct {
	Idx  int                    `json:"idx"`
	City struct {
		Geo []float64 `json:"geo"`
	} `json:"city"`
	Time struct {
		S string `json:"s"` // "YYYY-MM-DD HH:MM:SS"
	} `json:"time"`
	IAQI map[string]struct {
		V float64 `json:"v"`
	} `json:"iaqi"`
}

// GroundStationBAdapter implements the global-aggregator adapter: a
// nine-point grid search around the target, deduplicated by station id,
// keeping the smallest (age_hours, distance) tuple per pollutant.
type GroundStationBAdapter struct {
	Logger     log.Logger
	HTTPClient *http.Client
	Token      string
}

func NewGroundStationBAdapter(logger log.Logger, token string) *GroundStationBAdapter {
	return &GroundStationBAdapter{
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Token:      token,
	}
}

func (g *GroundStationBAdapter) Name() model.SourceID { return model.SourceGroundB }

func (g *GroundStationBAdapter) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
	return timed(g.Logger, model.SourceGroundB, func() (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
		var diag Diagnostics

		type stationReading struct {
			stationID string
			feed      groundBFeed
			distance  float64
			ageHours  float64
		}

		var (
			mu       sync.Mutex
			wg       sync.WaitGroup
			readings []stationReading
			attempts int
		)

		for _, off := range gridOffsets {
			off := off
			wg.Add(1)
			go func() {
				defer wg.Done()
				pointLat := loc.Latitude + off.dLat
				pointLon := loc.Longitude + off.dLon

				var feed groundBFeed
				n, err := doWithRetry(g.Logger, model.SourceGroundB, func() error {
					f, ferr := g.fetchPoint(ctx, pointLat, pointLon)
					if ferr != nil {
						return ferr
					}
					feed = f
					return nil
				})

				mu.Lock()
				defer mu.Unlock()
				attempts += n
				if err != nil {
					diag.Errors = append(diag.Errors, err)
					return
				}
				if len(feed.City.Geo) != 2 {
					return
				}

				age := stationAgeHours(feed.Time.S, now)
				dist := model.HaversineKM(loc.Latitude, loc.Longitude, feed.City.Geo[0], feed.City.Geo[1])
				stationID := fmt.Sprintf("%d", feed.Idx)
				readings = append(readings, stationReading{stationID: stationID, feed: feed, distance: dist, ageHours: age})
			}()
		}
		wg.Wait()
		diag.Attempts = attempts

		if len(readings) == 0 {
			diag.Errors = append(diag.Errors, ErrNoDataInRange)
			return map[model.Pollutant]model.RawPollutantMeasurement{}, diag
		}

		// Dedup by station id, keeping one reading per station.
		byStation := make(map[string]stationReading)
		for _, r := range readings {
			if _, exists := byStation[r.stationID]; !exists {
				byStation[r.stationID] = r
			}
		}

		type best struct {
			reading  stationReading
			iaqi     float64
		}
		bestByPollutant := make(map[model.Pollutant]best)

		for _, r := range byStation {
			for key, iaqi := range r.feed.IAQI {
				pollutant, ok := normalizeWAQIKey(key)
				if !ok {
					continue
				}
				current, exists := bestByPollutant[pollutant]
				if !exists || tupleLess(r.ageHours, r.distance, current.reading.ageHours, current.reading.distance) {
					bestByPollutant[pollutant] = best{reading: r, iaqi: iaqi.V}
				}
			}
		}

		results := make(map[model.Pollutant]model.RawPollutantMeasurement)
		for pollutant, b := range bestByPollutant {
			conc, err := units.InverseBreakpoint(pollutant, int(b.iaqi))
			if err != nil {
				continue
			}
			results[pollutant] = model.RawPollutantMeasurement{
				Pollutant:  pollutant,
				Value:      conc,
				Units:      model.CanonicalUnit(pollutant),
				SourceTag:  model.SourceGroundB,
				Quality:    model.QualityGood,
				ObservedAt: now,
			}
		}
		return results, diag
	})
}

func (g *GroundStationBAdapter) fetchPoint(ctx context.Context, lat, lon float64) (groundBFeed, error) {
	url := fmt.Sprintf(groundBAPIFormat, lat, lon, g.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return groundBFeed{}, err
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return groundBFeed{}, fmt.Errorf("%w: %v", ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if statusErr := classifyHTTPStatus(resp.StatusCode); statusErr != nil {
		return groundBFeed{}, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return groundBFeed{}, err
	}

	var parsed groundBResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return groundBFeed{}, err
	}
	if parsed.Status != "ok" {
		return groundBFeed{}, fmt.Errorf("sources: waqi status %q", parsed.Status)
	}
	return parsed.Data, nil
}

// tupleLess compares (age_hours, distance) tuples, smallest wins.
func tupleLess(ageA, distA, ageB, distB float64) bool {
	if ageA != ageB {
		return ageA < ageB
	}
	return distA < distB
}

func stationAgeHours(timestamp string, now time.Time) float64 {
	const layout = "2006-01-02 15:04:05"
	t, err := time.Parse(layout, timestamp)
	if err != nil {
		return 1e9 // unparseable timestamp sorts last
	}
	return now.Sub(t).Hours()
}

func normalizeWAQIKey(key string) (model.Pollutant, bool) {
	switch key {
	case "pm25":
		return model.PM25, true
	case "pm10":
		return model.PM10, true
	case "o3":
		return model.O3, true
	case "no2":
		return model.NO2, true
	case "so2":
		return model.SO2, true
	case "co":
		return model.CO, true
	default:
		return "", false
	}
}
