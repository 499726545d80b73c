package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrExtraction      = fmt.Errorf("archive extraction failed")

	// External service errors
	ErrExternalService = fmt.Errorf("external service error")
	ErrTimeout         = fmt.Errorf("operation timed out")

	// Media pipeline errors. [ErrTranscode] and [ErrUpload] both wrap [ErrMediaPipeline].
	ErrMediaPipeline = fmt.Errorf("media pipeline error")
	ErrTranscode     = fmt.Errorf("%w: transcode failed", ErrMediaPipeline)
	ErrUpload        = fmt.Errorf("%w: upload failed", ErrMediaPipeline)

	// Compensation errors are logged during rollback and never returned to callers.
	ErrCompensation = fmt.Errorf("compensation failed")

	// Persistence errors
	ErrNotFound  = fmt.Errorf("record not found")
	ErrDuplicate = fmt.Errorf("duplicate record")
)
