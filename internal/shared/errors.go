package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Model and inference errors
	ErrInvalidParams = fmt.Errorf("invalid parameter file")
	ErrShape         = fmt.Errorf("tensor shape mismatch")

	// Request errors
	ErrImageNotProvided = fmt.Errorf("Image data not provided.")
	ErrDecodeImage      = fmt.Errorf("failed to decode image")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrStateMismatch    = fmt.Errorf("state_mismatch")
	ErrTokenExchange    = fmt.Errorf("token exchange failed")
	ErrRefreshFailed    = fmt.Errorf("failed to refresh token")
	ErrSessionNotFound  = fmt.Errorf("session not found")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
