package diag

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/nidza07/nvda/internal/diag"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)
