// Package event turns the Docker engine's event stream into container state
// changes.
package event

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/runtime/docker"
)

const bufferSize = 100

type DockerGenerator struct {
	logger zerolog.Logger
	cli    dockerClient
}

func NewDockerGenerator(cli dockerClient, logger zerolog.Logger) *DockerGenerator {
	return &DockerGenerator{
		logger: logger.With().Str("component", "docker_events").Logger(),
		cli:    cli,
	}
}

// Subscribe streams start/stop/die events of containers managed by this
// daemon. The channel is closed when ctx ends or the engine closes the
// stream.
func (dg *DockerGenerator) Subscribe(ctx context.Context) (<-chan StateChange, error) {
	out := make(chan StateChange, bufferSize)

	filterArgs := filters.NewArgs()
	filterArgs.Add("type", string(events.ContainerEventType))
	filterArgs.Add("label", docker.LabelManagedBy+"="+docker.ManagedByValue)
	filterArgs.Add("event", string(events.ActionStart))
	filterArgs.Add("event", string(events.ActionStop))
	filterArgs.Add("event", string(events.ActionDie))

	options := events.ListOptions{
		Filters: filterArgs,
		Since:   time.Now().Format(time.RFC3339Nano),
	}
	eventCh, errCh := dg.cli.Events(ctx, options)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				dg.logger.Info().Msg("Docker event stream cancelled by context")
				return
			case err, ok := <-errCh:
				if !ok {
					return
				}
				if err != nil && ctx.Err() == nil {
					dg.logger.Error().Err(err).Msg("Error from Docker events stream")
				}
				// The engine client ends the stream after reporting an error.
				return
			case msg, ok := <-eventCh:
				if !ok {
					dg.logger.Info().Msg("Docker events channel closed")
					return
				}
				change, err := fromEventsMessage(msg)
				if err != nil {
					if _, ok := err.(*UnsupportedEventTypeError); ok {
						dg.logger.Debug().Err(err).Msg("Skipping docker event")
					} else {
						dg.logger.Error().Err(err).Msg("Converting docker event message")
					}
					continue
				}
				dg.logger.Debug().Str("name", change.Name).Str("state", change.State.String()).Msg("Received Docker event")
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
