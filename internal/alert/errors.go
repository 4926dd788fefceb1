package alert

import "errors"

// Error taxonomy. Per-rule failures are contained to that rule; only
// configuration errors at startup are fatal.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrNetwork       = errors.New("network failure")
	ErrStore         = errors.New("store failure")
	ErrDelivery      = errors.New("delivery failure")
	ErrNotFound      = errors.New("not found")

	// ErrNoExtractor means no extractor is registered for the URL's origin.
	ErrNoExtractor = errors.New("no extractor for origin")
	// ErrFieldMissing means an extractor matched but required fields were
	// absent or unparseable, which usually means the site changed its layout.
	ErrFieldMissing = errors.New("required field missing")
	// ErrSiteDrift is the name the monitor logs ErrFieldMissing under.
	ErrSiteDrift = ErrFieldMissing
)

// Validation failures surfaced by rule creation.
var (
	ErrInvalidURL           = validationError("invalid url")
	ErrInvalidThreshold     = validationError("invalid threshold")
	ErrNoExtractorForDomain = validationError("no extractor for domain")
	ErrExtractionFailed     = validationError("extraction failed")
)

type validation struct {
	msg string
}

func validationError(msg string) error {
	return &validation{msg: msg}
}

func (v *validation) Error() string { return v.msg }

// Is lets errors.Is(err, ErrValidation) match every validation failure.
func (v *validation) Is(target error) bool {
	return target == ErrValidation
}
