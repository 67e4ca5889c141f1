package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gocloud.dev/blob"

	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/units"
)

// satelliteGases maps the internal pollutant to the TEMPO-style product
// directory name used when listing the bucket.
var satelliteGases = map[model.Pollutant]string{
	model.NO2:  "NO2",
	model.O3:   "O3TOT",
	model.HCHO: "HCHO",
}

const maxCloudFraction = 0.2

// gridTile is the decoded shape of one satellite tile object: coordinate
// axes plus the flattened variables a "lazy hyperslab" read would pull —
// the single pixel's vertical column, quality flag and cloud fraction, laid
// out on the same lat/lon grid.
type gridTile struct {
	Latitude          []float64   `json:"latitude"`
	Longitude         []float64   `json:"longitude"`
	VerticalColumn    [][]float64 `json:"vertical_column"`
	QualityFlag       [][]int     `json:"quality_flag"`
	CloudFraction     [][]float64 `json:"cloud_fraction"`
	FillValue         float64     `json:"fill_value"`
}

// SatelliteAdapter reads the most recent tile under a per-gas prefix in a
// blob bucket and selects the single nearest pixel to the requested
// location, applying the NASA-compliant quality filters before the value
// is ever handed to fusion.
type SatelliteAdapter struct {
	Logger log.Logger
	Bucket *blob.Bucket
	// BucketPrefix mirrors the source layout
	// "TEMPO/TEMPO_{gas}_L3_V03/YYYY.MM.DD/".
	BucketPrefix string
}

func NewSatelliteAdapter(logger log.Logger, bucket *blob.Bucket, prefix string) *SatelliteAdapter {
	return &SatelliteAdapter{Logger: logger, Bucket: bucket, BucketPrefix: prefix}
}

func (s *SatelliteAdapter) Name() model.SourceID { return model.SourceSatellite }

func (s *SatelliteAdapter) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
	return timed(s.Logger, model.SourceSatellite, func() (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
		var diag Diagnostics
		results := make(map[model.Pollutant]model.RawPollutantMeasurement)

		for pollutant, gas := range satelliteGases {
			m, filterReason, err := s.fetchGas(ctx, loc, gas, pollutant, now)
			if err != nil {
				diag.Errors = append(diag.Errors, err)
				continue
			}
			if filterReason != "" {
				diag.FilterReasons = append(diag.FilterReasons, filterReason)
			}
			results[pollutant] = m
		}
		return results, diag
	})
}

func (s *SatelliteAdapter) fetchGas(ctx context.Context, loc model.Location, gas string, pollutant model.Pollutant, now time.Time) (model.RawPollutantMeasurement, string, error) {
	key, err := s.mostRecentObjectKey(ctx, gas, now)
	if err != nil {
		return model.RawPollutantMeasurement{}, "", err
	}

	tile, err := s.readTile(ctx, key)
	if err != nil {
		return model.RawPollutantMeasurement{}, "", err
	}

	latIdx := nearestIndex(tile.Latitude, loc.Latitude)
	lonIdx := nearestIndex(tile.Longitude, loc.Longitude)
	if latIdx < 0 || lonIdx < 0 {
		return model.RawPollutantMeasurement{}, "", fmt.Errorf("sources: empty coordinate axis in %s", key)
	}

	qFlag := tile.QualityFlag[latIdx][lonIdx]
	cloud := tile.CloudFraction[latIdx][lonIdx]
	value := tile.VerticalColumn[latIdx][lonIdx]

	if reason := filterReason(value, tile.FillValue, qFlag, cloud); reason != "" {
		level.Debug(s.Logger).Log("msg", "satellite pixel filtered", "gas", gas, "reason", reason)
		return model.RawPollutantMeasurement{
			Pollutant:    pollutant,
			Value:        value,
			Units:        model.UnitMolecCM2,
			SourceTag:    model.SourceSatellite,
			Quality:      model.QualityFilteredTag,
			FilterReason: reason,
			ObservedAt:   now,
		}, reason, nil
	}

	ppb := value * columnToPPBFactor(pollutant)
	return model.RawPollutantMeasurement{
		Pollutant:  pollutant,
		Value:      ppb,
		Units:      model.UnitPPB,
		SourceTag:  model.SourceSatellite,
		Quality:    model.QualityNASACompliant,
		ObservedAt: now,
	}, "", nil
}

func filterReason(value, fillValue float64, qualityFlag int, cloudFraction float64) string {
	switch {
	case qualityFlag != 0:
		return fmt.Sprintf("quality_flag=%d", qualityFlag)
	case cloudFraction >= maxCloudFraction:
		return fmt.Sprintf("cloud_fraction=%.2f >= %.2f", cloudFraction, maxCloudFraction)
	case math.IsNaN(value):
		return "value is NaN"
	case value == fillValue:
		return "value is fill value"
	case value <= 0:
		return "value is non-positive"
	default:
		return ""
	}
}

func columnToPPBFactor(p model.Pollutant) float64 {
	switch p {
	case model.NO2:
		return units.FactorNO2ColumnToPPB
	case model.HCHO:
		return units.FactorHCHOColumnToPPB
	case model.O3:
		return units.FactorO3DUToPPB
	default:
		return 1
	}
}

// nearestIndex returns the index of the axis value closest to target, or
// -1 if axis is empty (1-D argmin, per the nearest-pixel-selection
// glossary entry).
func nearestIndex(axis []float64, target float64) int {
	if len(axis) == 0 {
		return -1
	}
	best := 0
	bestDelta := math.Abs(axis[0] - target)
	for i := 1; i < len(axis); i++ {
		d := math.Abs(axis[i] - target)
		if d < bestDelta {
			best = i
			bestDelta = d
		}
	}
	return best
}

// mostRecentObjectKey lists objects under the per-gas, per-day prefix and
// returns the lexicographically last (most recent) key, matching the
// source layout's date-sortable filenames.
func (s *SatelliteAdapter) mostRecentObjectKey(ctx context.Context, gas string, now time.Time) (string, error) {
	day := now.UTC().Format("2006.01.02")
	prefix := fmt.Sprintf("%s/TEMPO_%s_L3_V03/%s/", strings.TrimSuffix(s.BucketPrefix, "/"), gas, day)

	iter := s.Bucket.List(&blob.ListOptions{Prefix: prefix})
	var keys []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrTransientUpstream, err)
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no objects under %s", ErrNoDataInRange, prefix)
	}
	sort.Strings(keys)
	return keys[len(keys)-1], nil
}

func (s *SatelliteAdapter) readTile(ctx context.Context, key string) (*gridTile, error) {
	r, err := s.Bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientUpstream, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var tile gridTile
	if err := json.Unmarshal(body, &tile); err != nil {
		return nil, fmt.Errorf("sources: decoding tile %s: %w", key, err)
	}
	return &tile, nil
}
