package sse

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Decoder turns a server-sent-events byte stream into a sequence of decoded
// event payloads, delivered to a callback in strict arrival order. A decoder
// is stateless across streams; replaying requires a fresh request.
type Decoder struct {
	logger *zap.Logger
}

// NewDecoder creates a new stream event decoder
func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger.Named("sse")}
}

// Decode reads r until exhaustion, invoking fn with the data payload of each
// complete event frame. A frame completes on its blank line; a trailing frame
// truncated mid-stream is discarded. Multi-line data fields are joined with
// newlines.
// Malformed frames are skipped; a panic inside fn is recovered and logged so
// one bad fragment cannot abort the rest of the stream. Only a read failure
// on r (or context cancellation) terminates with an error.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, fn func(data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

	var data []string
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			// Blank line ends the frame. Frames without a data
			// field carry nothing to deliver.
			if len(data) > 0 {
				d.dispatch(fn, strings.Join(data, "\n"))
				data = data[:0]
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			// comment
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			// A field name with no colon has an empty value and
			// nothing we act on; skip rather than abort.
			continue
		}
		if field == "data" {
			data = append(data, strings.TrimPrefix(value, " "))
		}
		// event/id/retry fields carry no payload of their own
	}
	// A frame is only complete once its blank line arrives; data buffered
	// when the source ends belongs to a truncated frame and is discarded.
	return scanner.Err()
}

func (d *Decoder) dispatch(fn func(data string), payload string) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("event callback panicked",
				zap.Any("panic", rec),
				zap.String("data", payload))
		}
	}()
	fn(payload)
}
