package models

// WeatherRecord is the normalized weather for one city. It is cached and
// returned as a whole; JSON names match the public response body.
type WeatherRecord struct {
	City               string   `json:"city"`
	TemperatureCelsius *float64 `json:"temperature_celsius"`
	Description        string   `json:"description"`
	Humidity           *float64 `json:"humidity"`
}

// ForecastPayload is the subset of the provider timeline response the service reads.
type ForecastPayload struct {
	Address string        `json:"address"`
	Days    []ForecastDay `json:"days"`
}

// ForecastDay is one day's entry in the provider timeline.
type ForecastDay struct {
	Temp       *float64 `json:"temp"`
	Conditions *string  `json:"conditions"`
	Humidity   *float64 `json:"humidity"`
}

// NewWeatherRecord builds a record from the first forecast day. city is used
// when the provider omits its own display name. ok is false when there are no days.
func NewWeatherRecord(p ForecastPayload, city string) (rec WeatherRecord, ok bool) {
	if len(p.Days) == 0 {
		return WeatherRecord{}, false
	}
	today := p.Days[0]
	rec = WeatherRecord{
		City:               p.Address,
		TemperatureCelsius: copyFloat(today.Temp),
		Humidity:           copyFloat(today.Humidity),
	}
	if rec.City == "" {
		rec.City = city
	}
	if today.Conditions != nil {
		rec.Description = *today.Conditions
	}
	return rec, true
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float64 returns a pointer to v. Handy for literals in fixtures.
func Float64(v float64) *float64 {
	return &v
}
