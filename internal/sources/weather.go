package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/airwatch-project/airwatch/internal/model"
)

// weatherAPI is the global weather-context endpoint (§6), adapted from the
// teacher's GetWeather request shape.
const weatherAPI = "https://api.open-meteo.com/v1/gfs"

// WeatherAdapterImpl fetches current weather (T, RH, wind, weather code)
// for the weather context. The collector runs it concurrently with the
// model adapter's meteorology call and keeps whichever non-nil result
// arrives first.
type WeatherAdapterImpl struct {
	Logger     log.Logger
	HTTPClient *http.Client
}

// NewWeatherAdapter builds a weather adapter with a sane default client
// timeout, matching the 30s soft per-adapter deadline from §5.
func NewWeatherAdapter(logger log.Logger) *WeatherAdapterImpl {
	return &WeatherAdapterImpl{
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WeatherAdapterImpl) Name() model.SourceID { return model.SourceWeather }

type gfsCurrentResponse struct {
	Current struct {
		Temperature2M     float64 `json:"temperature_2m"`
		RelativeHumidity2M float64 `json:"relative_humidity_2m"`
		WindSpeed10M       float64 `json:"windspeed_10m"`
		WindDirection10M   float64 `json:"winddirection_10m"`
		WeatherCode        int     `json:"weather_code"`
	} `json:"current"`
}

// Fetch satisfies Adapter but weather carries no pollutants; it always
// returns an empty measurement map. Use FetchWeather for the weather
// context itself.
func (w *WeatherAdapterImpl) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
	return timed(w.Logger, model.SourceWeather, func() (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
		return map[model.Pollutant]model.RawPollutantMeasurement{}, Diagnostics{}
	})
}

// FetchWeather implements WeatherAdapter.
func (w *WeatherAdapterImpl) FetchWeather(ctx context.Context, loc model.Location, now time.Time) (*model.WeatherContext, Diagnostics) {
	var diag Diagnostics
	diag.Source = model.SourceWeather
	start := time.Now()
	defer func() { diag.LatencyMS = time.Since(start).Milliseconds() }()

	var result *model.WeatherContext
	attempts, err := doWithRetry(w.Logger, model.SourceWeather, func() error {
		resp, ferr := w.doRequest(ctx, loc)
		if ferr != nil {
			return ferr
		}
		result = resp
		return nil
	})
	diag.Attempts = attempts
	if err != nil {
		level.Warn(w.Logger).Log("msg", "weather fetch failed", "err", err)
		diag.Errors = append(diag.Errors, err)
		return nil, diag
	}
	return result, diag
}

func (w *WeatherAdapterImpl) doRequest(ctx context.Context, loc model.Location) (*model.WeatherContext, error) {
	u, err := url.Parse(weatherAPI)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Add("latitude", fmt.Sprintf("%f", loc.Latitude))
	values.Add("longitude", fmt.Sprintf("%f", loc.Longitude))
	values.Add("current", "temperature_2m,relative_humidity_2m,windspeed_10m,winddirection_10m,weather_code")
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.HTTPClient.Do(req)
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

	var parsed gfsCurrentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	return &model.WeatherContext{
		TemperatureC:     parsed.Current.Temperature2M,
		HumidityPercent:  parsed.Current.RelativeHumidity2M,
		WindSpeedMS:      parsed.Current.WindSpeed10M,
		WindDirectionDeg: parsed.Current.WindDirection10M,
		WeatherCode:      parsed.Current.WeatherCode,
		Source:           model.SourceWeather,
	}, nil
}
