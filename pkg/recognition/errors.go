package recognition

import "errors"

var (
	// ErrRecognitionFailed is reported when the OCR engine produced no
	// usable output. The pipeline degrades to context-only tags.
	ErrRecognitionFailed = errors.New("recognition failed")

	// ErrMalformedOutput is returned when engine output cannot be parsed
	ErrMalformedOutput = errors.New("malformed OCR output")
)
