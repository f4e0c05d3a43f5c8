package jobmanager

import (
	"context"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobsaga/app"
	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg, err := config.NewJobServiceConfig("test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	assert.NoError(t, Run(ctx, cfg, app.WithLogger(logging.Nop())))
}
