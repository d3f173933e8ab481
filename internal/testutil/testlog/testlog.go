package testlog

import (
	"testing"

	"github.com/danmuck/panelctl/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Debug().Msgf("test=%s", t.Name())
}
