package logtrace

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestRequestIdFromContext(t *testing.T) {
	assert.Equal(t, "", RequestIdFromContext(nil))
	assert.Equal(t, "", RequestIdFromContext(context.Background()))

	ctx := WithRequestId(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIdFromContext(ctx))
}

func TestInitLoggerLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	InitLogger(&buf, "debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")

	buf.Reset()
	InitLogger(&buf, "bogus")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}
