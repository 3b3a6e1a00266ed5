package client

import "strconv"

// Service is a service description as stored by the daemon.
type Service struct {
	Name       string   `json:"name"`
	Executable string   `json:"executable"`
	WorkDir    string   `json:"work_dir"`
	Args       []string `json:"args,omitempty"`
	Env        []string `json:"env,omitempty"`
}

// ServiceStatus is one row of the status table.
type ServiceStatus struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	State string `json:"state"`
	PID   int    `json:"pid,omitempty"`
}

// ServiceDetail is the response of GET /services/:index.
type ServiceDetail struct {
	Config Service       `json:"config"`
	Status ServiceStatus `json:"status"`
}

// Settings are the daemon's application settings.
type Settings struct {
	LogBasePath string `json:"log_base_path"`
}

// StartAllResult counts the outcome of start-all.
type StartAllResult struct {
	Started int `json:"started"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Result is the body of every mutating endpoint.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Index   *int   `json:"index,omitempty"`
}

// APIError is returned when the daemon answers with a failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "HTTP " + strconv.Itoa(e.StatusCode)
	}
	return "API error (" + strconv.Itoa(e.StatusCode) + "): " + e.Message
}
