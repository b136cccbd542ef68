package observability

import (
	"github.com/danmuck/cdrbridge/internal/logging"
	"github.com/rs/zerolog"
)

// InitLogger configures the process logger once and returns one tagged
// with the program name.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	return logging.For(app)
}
