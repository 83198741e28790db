package http

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokend/pkg/httpx"
)

// WeatherForecast is the sample resource behind the API scope.
type WeatherForecast struct {
	Date         string `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	TemperatureF int    `json:"temperatureF"`
	Summary      string `json:"summary"`
}

var summaries = []string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

// WeatherForecastHandler returns five days of made-up forecasts. It runs
// behind AuthnMiddleware and RequireScopes("API").
func WeatherForecastHandler(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC()
	out := make([]WeatherForecast, 5)
	for i := range out {
		c := rand.IntN(75) - 20
		out[i] = WeatherForecast{
			Date:         today.AddDate(0, 0, i+1).Format(time.DateOnly),
			TemperatureC: c,
			TemperatureF: 32 + int(float64(c)/0.5556),
			Summary:      summaries[rand.IntN(len(summaries))],
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
