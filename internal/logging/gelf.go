package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfHandler returns a JSON slog handler that ships records to a
// Graylog input over UDP. The returned writer must be closed on exit.
func NewGelfHandler(addr, level string) (slog.Handler, *gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gelf writer: %w", err)
	}
	w.Facility = ServiceName
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return h, w, nil
}
