package server

// StartGenerateJobRequest names the live site and the staging host to map it onto.
type StartGenerateJobRequest struct {
	Site        string `json:"site" example:"www.example.com"`
	StagingHost string `json:"staging_host" example:"staging.example.com"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"job not found"`
}

type healthResponse struct {
	Status   string   `json:"status"`
	Backends []string `json:"backends"`
}
