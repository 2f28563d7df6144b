package combatlog

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/combatsim/internal/combatlog"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
