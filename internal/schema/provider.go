package schema

import "context"

// StreamOptions configures a single streaming completion request.
type StreamOptions struct {
	Model       string
	Temperature float64
}

func NewStreamOptions(model string, temperature float64) StreamOptions {
	return StreamOptions{
		Model:       model,
		Temperature: temperature,
	}
}

// TextStream yields text fragments of one generation.
//
// Recv returns io.EOF once the model signals completion. Close releases the
// upstream connection and may be called at any time, including mid-stream.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// LLMProvider is the interface every model backend must satisfy.
type LLMProvider interface {
	Stream(ctx context.Context, messages Messages, opts StreamOptions) (TextStream, error)
	DefaultModel() string
}
