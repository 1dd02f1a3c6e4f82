// Package ocr turns receipt attachments (images and PDFs) into plain
// text. Extraction results are tagged values, never errors: one broken
// attachment must not abort a batch, so downstream code branches on the
// result kind instead of string equality against magic sentinels.
package ocr

// Kind discriminates extraction outcomes.
type Kind int

const (
	// TextFound means Text holds usable extracted text.
	TextFound Kind = iota
	// NotFound means the attachment exists in none of the known locations.
	NotFound
	// LoadError means the file was found but could not be read or decoded.
	LoadError
	// NoTextDetected means extraction ran but produced nothing usable.
	NoTextDetected
)

func (k Kind) String() string {
	switch k {
	case TextFound:
		return "text_found"
	case NotFound:
		return "not_found"
	case LoadError:
		return "load_error"
	case NoTextDetected:
		return "no_text_detected"
	}
	return "unknown"
}

// Result is the outcome of one extraction attempt.
type Result struct {
	Kind Kind
	Text string
}

// OK reports whether the result carries usable text.
func (r Result) OK() bool {
	return r.Kind == TextFound
}

func found(text string) Result {
	return Result{Kind: TextFound, Text: text}
}
