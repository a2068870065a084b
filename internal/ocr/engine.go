// Package ocr wraps the external text-recognition engine. The engine is a
// black box from the pipeline's point of view: image bytes in, text plus a
// confidence in [0,1] out.
package ocr

import "context"

// Result is the engine's output for one image.
type Result struct {
	Text       string
	Confidence float32 // engine-reported, in [0,1]; not independently verified
}

// Engine recognizes text in a receipt image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}
