package jobmanager

import (
	"context"
	"fmt"
	"runtime"

	"github.com/RezaEskandarii/jobsaga/app"
	"github.com/RezaEskandarii/jobsaga/types/config"
)

// New initializes the whole job saga service from the provided JobServiceConfig.
//
// The function performs the following steps:
//  1. Connects to the configured saga store (Postgres, SQLite or in-memory) and
//     applies pending migrations under the migration lock.
//  2. Connects to the delayed scheduler (Redis or in-memory).
//  3. Connects to the message broker (RabbitMQ or in-memory).
//  4. Wires the orchestrator, partition consumer, ingress router, delayed
//     delivery worker, retention sweeper and, when handlers are registered,
//     the embedded transcode worker.
//
// Background components do not run until Start is called on the returned
// container. Use container.JobService to submit requests and query jobs.
//
// Parameters:
//   - ctx: context used for connection setup and migrations.
//   - cfg: full configuration of the service.
//   - opts: optional injected connections, logger or clock.
//
// Returns:
//   - *app.Container: the wired service.
//   - error: any failure that prevents setup (unreachable database, failed migration, invalid driver).
func New(ctx context.Context, cfg *config.JobServiceConfig, opts ...app.ContainerOption) (*app.Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	container, err := app.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	container.Logger.Debug().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("runtime")
	return container, nil
}

// Run boots the service and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.JobServiceConfig, opts ...app.ContainerOption) error {
	container, err := New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			container.Logger.Error().Err(err).Msg("close connections")
		}
	}()
	return container.Start(ctx)
}
