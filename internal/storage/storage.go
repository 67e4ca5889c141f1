// Package storage persists hourly and daily AQI results to MySQL. It owns
// no business logic beyond type coercion and safe null handling: schema
// creation is idempotent and every write is an upsert keyed on the
// natural (location, time) key.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/airwatch-project/airwatch/internal/model"
)

// Store wraps a *sql.DB with the schema and upsert operations the
// scheduler's per-tick pipeline needs.
type Store struct {
	db *sql.DB
}

// Open connects to MySQL using the given DSN (user:pass@tcp(host:port)/db)
// and verifies connectivity with Ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates both tables if they do not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS comprehensive_aqi_hourly (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			city VARCHAR(255) NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			timestamp DATETIME NOT NULL,
			overall_aqi INT NULL,
			aqi_category VARCHAR(64) NULL,
			dominant_pollutant VARCHAR(16) NULL,
			health_message TEXT NULL,
			why_today TEXT NULL,
			pm25_concentration DOUBLE NULL,
			pm25_aqi INT NULL,
			pm25_bias_corrected BOOLEAN NULL,
			pm10_concentration DOUBLE NULL,
			pm10_aqi INT NULL,
			pm10_bias_corrected BOOLEAN NULL,
			o3_concentration DOUBLE NULL,
			o3_aqi INT NULL,
			o3_bias_corrected BOOLEAN NULL,
			no2_concentration DOUBLE NULL,
			no2_aqi INT NULL,
			no2_bias_corrected BOOLEAN NULL,
			so2_concentration DOUBLE NULL,
			so2_aqi INT NULL,
			so2_bias_corrected BOOLEAN NULL,
			co_concentration DOUBLE NULL,
			co_aqi INT NULL,
			co_bias_corrected BOOLEAN NULL,
			weather_temperature_c DOUBLE NULL,
			weather_humidity_pct DOUBLE NULL,
			weather_wind_speed_ms DOUBLE NULL,
			UNIQUE KEY uniq_city_timestamp (city, timestamp),
			INDEX idx_lat_lon_ts (latitude, longitude, timestamp),
			INDEX idx_overall_aqi (overall_aqi)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_aqi_trends (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			city VARCHAR(255) NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			date DATE NOT NULL,
			average_aqi DOUBLE NULL,
			average_category VARCHAR(64) NULL,
			dominant_pollutant VARCHAR(16) NULL,
			completeness DOUBLE NULL,
			average_temperature_c DOUBLE NULL,
			average_humidity_pct DOUBLE NULL,
			average_wind_speed_ms DOUBLE NULL,
			UNIQUE KEY uniq_city_date (city, date)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}

// nullFloat maps a nil pointer or NaN to SQL NULL.
func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil || math.IsNaN(*v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// nullString maps an empty string or a "null"/"NULL" token to SQL NULL.
func nullString(s string) sql.NullString {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "null" || trimmed == "NULL" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// UpsertHourly writes one (city, hour) row, inserting or updating on the
// unique (city, timestamp) key. The timestamp is truncated to the hour.
func (s *Store) UpsertHourly(ctx context.Context, row model.ComprehensiveAQIHourlyRow) error {
	hourTS := row.Timestamp.Truncate(time.Hour)

	pollutantCols := make(map[model.Pollutant]model.PersistedPollutant, 6)
	for _, p := range model.EPAPollutants {
		if pp, ok := row.Pollutants[p]; ok {
			pollutantCols[p] = pp
		}
	}

	query := `INSERT INTO comprehensive_aqi_hourly (
		city, latitude, longitude, timestamp, overall_aqi, aqi_category, dominant_pollutant,
		health_message, why_today,
		pm25_concentration, pm25_aqi, pm25_bias_corrected,
		pm10_concentration, pm10_aqi, pm10_bias_corrected,
		o3_concentration, o3_aqi, o3_bias_corrected,
		no2_concentration, no2_aqi, no2_bias_corrected,
		so2_concentration, so2_aqi, so2_bias_corrected,
		co_concentration, co_aqi, co_bias_corrected,
		weather_temperature_c, weather_humidity_pct, weather_wind_speed_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		overall_aqi=VALUES(overall_aqi), aqi_category=VALUES(aqi_category),
		dominant_pollutant=VALUES(dominant_pollutant), health_message=VALUES(health_message),
		why_today=VALUES(why_today),
		pm25_concentration=VALUES(pm25_concentration), pm25_aqi=VALUES(pm25_aqi), pm25_bias_corrected=VALUES(pm25_bias_corrected),
		pm10_concentration=VALUES(pm10_concentration), pm10_aqi=VALUES(pm10_aqi), pm10_bias_corrected=VALUES(pm10_bias_corrected),
		o3_concentration=VALUES(o3_concentration), o3_aqi=VALUES(o3_aqi), o3_bias_corrected=VALUES(o3_bias_corrected),
		no2_concentration=VALUES(no2_concentration), no2_aqi=VALUES(no2_aqi), no2_bias_corrected=VALUES(no2_bias_corrected),
		so2_concentration=VALUES(so2_concentration), so2_aqi=VALUES(so2_aqi), so2_bias_corrected=VALUES(so2_bias_corrected),
		co_concentration=VALUES(co_concentration), co_aqi=VALUES(co_aqi), co_bias_corrected=VALUES(co_bias_corrected),
		weather_temperature_c=VALUES(weather_temperature_c), weather_humidity_pct=VALUES(weather_humidity_pct),
		weather_wind_speed_ms=VALUES(weather_wind_speed_ms)`

	var weatherTemp, weatherHumidity, weatherWind sql.NullFloat64
	if row.Weather != nil {
		weatherTemp = sql.NullFloat64{Float64: row.Weather.TemperatureC, Valid: true}
		weatherHumidity = sql.NullFloat64{Float64: row.Weather.HumidityPercent, Valid: true}
		weatherWind = sql.NullFloat64{Float64: row.Weather.WindSpeedMS, Valid: true}
	}

	pm25, pm10, o3, no2, so2, co := pollutantCols[model.PM25], pollutantCols[model.PM10], pollutantCols[model.O3], pollutantCols[model.NO2], pollutantCols[model.SO2], pollutantCols[model.CO]

	_, err := s.db.ExecContext(ctx, query,
		nullString(row.City), row.Latitude, row.Longitude, hourTS,
		nullInt(&row.OverallAQI), nullString(row.AQICategory), nullString(string(row.DominantPollutant)),
		nullString(row.HealthMessage), nullString(row.WhyToday),
		nullFloat(pm25.Concentration), nullInt(pm25.AQI), pm25.BiasCorrected,
		nullFloat(pm10.Concentration), nullInt(pm10.AQI), pm10.BiasCorrected,
		nullFloat(o3.Concentration), nullInt(o3.AQI), o3.BiasCorrected,
		nullFloat(no2.Concentration), nullInt(no2.AQI), no2.BiasCorrected,
		nullFloat(so2.Concentration), nullInt(so2.AQI), so2.BiasCorrected,
		nullFloat(co.Concentration), nullInt(co.AQI), co.BiasCorrected,
		weatherTemp, weatherHumidity, weatherWind,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert hourly: %w", err)
	}
	return nil
}

// UpsertDaily writes one (city, date) rollup row.
func (s *Store) UpsertDaily(ctx context.Context, row model.DailyTrendRow) error {
	query := `INSERT INTO daily_aqi_trends (
		city, latitude, longitude, date, average_aqi, average_category, dominant_pollutant,
		completeness, average_temperature_c, average_humidity_pct, average_wind_speed_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		average_aqi=VALUES(average_aqi), average_category=VALUES(average_category),
		dominant_pollutant=VALUES(dominant_pollutant), completeness=VALUES(completeness),
		average_temperature_c=VALUES(average_temperature_c), average_humidity_pct=VALUES(average_humidity_pct),
		average_wind_speed_ms=VALUES(average_wind_speed_ms)`

	_, err := s.db.ExecContext(ctx, query,
		nullString(row.City), row.Latitude, row.Longitude, row.Date.Format("2006-01-02"),
		row.AverageAQI, nullString(row.AverageCategory), nullString(string(row.DominantPollutant)),
		row.Completeness, row.AverageWeather.TemperatureC, row.AverageWeather.HumidityPercent, row.AverageWeather.WindSpeedMS,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert daily: %w", err)
	}
	return nil
}

// RollupDaily reads every hourly row for (city, date), averages the overall
// AQI and the three weather columns, picks the most frequent dominant
// pollutant, and derives the category from the averaged AQI. Completeness
// is hours with an overall AQI / 24. Per-pollutant concentrations and AQIs
// are not averaged: AveragePollutants and AveragePollutantAQI stay nil.
func (s *Store) RollupDaily(ctx context.Context, city string, date time.Time) (model.DailyTrendRow, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `SELECT latitude, longitude, overall_aqi, dominant_pollutant,
		weather_temperature_c, weather_humidity_pct, weather_wind_speed_ms
		FROM comprehensive_aqi_hourly WHERE city = ? AND timestamp >= ? AND timestamp < ?`, city, dayStart, dayEnd)
	if err != nil {
		return model.DailyTrendRow{}, fmt.Errorf("storage: rollup query: %w", err)
	}
	defer rows.Close()

	var (
		lat, lon                                  float64
		aqiSum, tempSum, humiditySum, windSum      float64
		aqiCount, tempCount, humidityCount, windCount int
		dominantCounts                             = map[model.Pollutant]int{}
	)

	for rows.Next() {
		var (
			rowLat, rowLon                     float64
			overallAQI                         sql.NullInt64
			dominant                           sql.NullString
			temp, humidity, wind               sql.NullFloat64
		)
		if err := rows.Scan(&rowLat, &rowLon, &overallAQI, &dominant, &temp, &humidity, &wind); err != nil {
			return model.DailyTrendRow{}, fmt.Errorf("storage: rollup scan: %w", err)
		}
		lat, lon = rowLat, rowLon
		if overallAQI.Valid {
			aqiSum += float64(overallAQI.Int64)
			aqiCount++
		}
		if dominant.Valid {
			dominantCounts[model.Pollutant(dominant.String)]++
		}
		if temp.Valid {
			tempSum += temp.Float64
			tempCount++
		}
		if humidity.Valid {
			humiditySum += humidity.Float64
			humidityCount++
		}
		if wind.Valid {
			windSum += wind.Float64
			windCount++
		}
	}
	if err := rows.Err(); err != nil {
		return model.DailyTrendRow{}, fmt.Errorf("storage: rollup rows: %w", err)
	}

	result := model.DailyTrendRow{
		City:       city,
		Latitude:   lat,
		Longitude:  lon,
		Date:       dayStart,
		Completeness: float64(aqiCount) / 24.0,
	}
	if aqiCount > 0 {
		result.AverageAQI = aqiSum / float64(aqiCount)
		result.AverageCategory = categoryForAQI(result.AverageAQI)
	}
	if dominant := modalDominant(dominantCounts); dominant != "" {
		result.DominantPollutant = dominant
	}
	if tempCount > 0 {
		result.AverageWeather.TemperatureC = tempSum / float64(tempCount)
	}
	if humidityCount > 0 {
		result.AverageWeather.HumidityPercent = humiditySum / float64(humidityCount)
	}
	if windCount > 0 {
		result.AverageWeather.WindSpeedMS = windSum / float64(windCount)
	}
	return result, nil
}

func modalDominant(counts map[model.Pollutant]int) model.Pollutant {
	var best model.Pollutant
	bestCount := 0
	// Iterate in EPAPollutants priority order so ties favor the more
	// health-significant pollutant, matching dominant-pollutant selection
	// elsewhere in the pipeline.
	for _, p := range model.EPAPollutants {
		if counts[p] > bestCount {
			best = p
			bestCount = counts[p]
		}
	}
	return best
}

func categoryForAQI(aqi float64) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}
