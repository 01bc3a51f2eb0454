package llm

import (
	"iter"
	"log/slog"
)

// eventStream is the cursor shape shared by the openai and anthropic SDK
// streams.
type eventStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// streamChunks adapts an SDK cursor to an iter.Seq2. open is called once per
// range so every iteration issues its own request. convert may return a nil
// chunk to skip an event. The cursor is closed when iteration ends for any
// reason, including the consumer breaking out early.
func streamChunks[T any](backend string, open func() eventStream[T], convert func(T) (*ContentChunk, error)) iter.Seq2[*ContentChunk, error] {
	return func(yield func(*ContentChunk, error) bool) {
		stream := open()
		defer func() {
			if err := stream.Close(); err != nil {
				slog.Debug("failed to close stream", "backend", backend, "error", err)
			}
		}()

		for stream.Next() {
			chunk, err := convert(stream.Current())
			if err != nil {
				yield(nil, err)
				return
			}
			if chunk == nil {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// errorSeq yields err once.
func errorSeq(err error) iter.Seq2[*ContentChunk, error] {
	return func(yield func(*ContentChunk, error) bool) {
		yield(nil, err)
	}
}
