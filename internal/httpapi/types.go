// Package httpapi provides the REST API for running backtests and reading
// stored runs.
package httpapi

// StrategiesJSON lists the registered strategies.
type StrategiesJSON struct {
	Strategies []string `json:"strategies"`
}

// HealthJSON is returned by GET /health.
type HealthJSON struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorJSON is the body of every non-2xx response.
type ErrorJSON struct {
	Error string `json:"error"`
}
