package climate

import (
	"sort"
	"time"
)

// RawDailySample carries one day of physical-unit measurements from the
// archive provider. Samples are transient: aggregated into monthly values
// and discarded, never persisted.
type RawDailySample struct {
	Date             time.Time
	RadiationMJ      *float64 // shortwave radiation sum, MJ/m^2
	SunshineSeconds  *float64 // sunshine duration, s
	HumidityPct      *float64 // mean relative humidity, %
	PrecipitationMM  *float64 // precipitation sum, mm
	MeanTemperatureC *float64 // mean 2m temperature, C
}

// MonthlyValue is one calendar month reduced to the four normalized metrics.
type MonthlyValue struct {
	Year          int
	Month         time.Month
	Sunlight      Percent
	Humidity      Percent
	Precipitation Percent
	Temperature   Percent
}

// Physical bounds for min-max scaling onto the 0-100 scale. The provider
// only pins down temperature's mapping; the remaining bounds are chosen
// against plausible physical ranges:
//   - 30 MJ/m^2/day is roughly the clear-sky daily radiation ceiling in
//     temperate latitudes,
//   - 14 h is an upper bound on useful daily sunshine,
//   - 300 mm/month is a very wet month outside the tropics.
//
// Relative humidity is already a percentage and only needs clamping.
const (
	radiationMaxMJ     = 30.0
	sunshineMaxSeconds = 14 * 3600.0
	precipMaxMonthlyMM = 300.0
)

// DenormalizePrecipitation maps a monthly 0-100 precipitation value back to
// millimetres, the inverse of the aggregation scaling.
func DenormalizePrecipitation(n Percent) float64 {
	return float64(n) / 100.0 * precipMaxMonthlyMM
}

type monthKey struct {
	year  int
	month time.Month
}

type monthAccum struct {
	radSum, radN           float64
	sunSum, sunN           float64
	humiditySum, humidityN float64
	precipSum              float64
	tempSum, tempN         float64
}

// AggregateMonthly buckets daily samples into calendar months and reduces
// each metric to a normalized monthly value: mean radiation and sunshine
// blended into a sunlight index, mean humidity, total precipitation and
// mean temperature. Months are returned newest first, capped at 12.
func AggregateMonthly(samples []RawDailySample) []MonthlyValue {
	accums := make(map[monthKey]*monthAccum)
	for _, s := range samples {
		key := monthKey{s.Date.Year(), s.Date.Month()}
		acc := accums[key]
		if acc == nil {
			acc = &monthAccum{}
			accums[key] = acc
		}
		if s.RadiationMJ != nil {
			acc.radSum += *s.RadiationMJ
			acc.radN++
		}
		if s.SunshineSeconds != nil {
			acc.sunSum += *s.SunshineSeconds
			acc.sunN++
		}
		if s.HumidityPct != nil {
			acc.humiditySum += *s.HumidityPct
			acc.humidityN++
		}
		if s.PrecipitationMM != nil {
			acc.precipSum += *s.PrecipitationMM
		}
		if s.MeanTemperatureC != nil {
			acc.tempSum += *s.MeanTemperatureC
			acc.tempN++
		}
	}

	values := make([]MonthlyValue, 0, len(accums))
	for key, acc := range accums {
		values = append(values, MonthlyValue{
			Year:          key.year,
			Month:         key.month,
			Sunlight:      sunlightIndex(acc),
			Humidity:      humidityIndex(acc),
			Precipitation: Clamp(acc.precipSum / precipMaxMonthlyMM * 100.0),
			Temperature:   temperatureIndex(acc),
		})
	}

	sort.Slice(values, func(i, j int) bool {
		if values[i].Year != values[j].Year {
			return values[i].Year > values[j].Year
		}
		return values[i].Month > values[j].Month
	})
	if len(values) > 12 {
		values = values[:12]
	}
	return values
}

// sunlightIndex blends mean daily radiation and mean sunshine duration.
// When only one series has data for the month, that series decides alone.
func sunlightIndex(acc *monthAccum) Percent {
	var parts []float64
	if acc.radN > 0 {
		parts = append(parts, acc.radSum/acc.radN/radiationMaxMJ*100.0)
	}
	if acc.sunN > 0 {
		parts = append(parts, acc.sunSum/acc.sunN/sunshineMaxSeconds*100.0)
	}
	if len(parts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range parts {
		sum += p
	}
	return Clamp(sum / float64(len(parts)))
}

func humidityIndex(acc *monthAccum) Percent {
	if acc.humidityN == 0 {
		return 0
	}
	return Clamp(acc.humiditySum / acc.humidityN)
}

func temperatureIndex(acc *monthAccum) Percent {
	if acc.tempN == 0 {
		return 0
	}
	return NormalizeTemperature(acc.tempSum / acc.tempN)
}
