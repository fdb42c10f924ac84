package handlers

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
	Code  string `json:"code,omitempty" example:"SESSION_NOT_FOUND"`
}

type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}
