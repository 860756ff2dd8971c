package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/environmental-monitor/internal/api"
	"github.com/roman-kulish/environmental-monitor/internal/publish"
	"github.com/roman-kulish/environmental-monitor/internal/sampler"
	"github.com/roman-kulish/environmental-monitor/internal/sensor"
	"github.com/roman-kulish/environmental-monitor/internal/sensor/command"
	"github.com/roman-kulish/environmental-monitor/internal/sensor/simulated"
	"github.com/roman-kulish/environmental-monitor/internal/storage"
	"github.com/roman-kulish/environmental-monitor/internal/stream"
)

// Run wires the sensor array, store, scheduler and query server together and
// blocks until ctx is cancelled or the server fails. Only configuration, schema
// and listener errors are returned; sensor and store failures at runtime are
// handled by the components.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(ctx, &config.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	array, err := createSensors(&config.Sensors, &config.Sampler, logger)
	if err != nil {
		return fmt.Errorf("failed to create sensors: %w", err)
	}

	publishers := createPublishers(ctx, &config.Publish, logger)
	defer func() {
		for _, p := range publishers {
			if err := p.Close(); err != nil {
				logger.Warn("closing publisher failed", slog.String("publisher", p.Name()), slog.String("error", err.Error()))
			}
		}
	}()

	scheduler, err := createScheduler(array, store, &config.Sampler, publishers, logger)
	if err != nil {
		return fmt.Errorf("failed to create sampler: %w", err)
	}

	dist, err := stream.NewDistributor(store,
		stream.WithRollover(config.Stream.Rollover),
		stream.WithTickInterval(config.Stream.TickInterval.Std()),
		stream.WithSessionTTL(config.Stream.SessionTTL.Std()),
		stream.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create stream distributor: %w", err)
	}

	handler := api.NewHandler(dist,
		api.WithHealth(scheduler),
		api.WithCounter(store),
		api.WithAllowedOrigins(config.HTTP.AllowedOrigins),
		api.WithLogger(logger))

	server := &http.Server{
		Addr:         config.HTTP.Listen,
		Handler:      handler.Router(),
		ReadTimeout:  config.HTTP.ReadTimeout.Std(),
		WriteTimeout: config.HTTP.WriteTimeout.Std(),
		IdleTimeout:  config.HTTP.IdleTimeout.Std(),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = dist.ReapIdle(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("query server listening", slog.String("addr", config.HTTP.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-serverErr:
		if err != nil {
			err = fmt.Errorf("query server: %w", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.HTTP.ShutdownTimeout.Std())
	defer shutdownCancel()
	if sErr := server.Shutdown(shutdownCtx); sErr != nil {
		logger.Warn("query server shutdown failed", slog.String("error", sErr.Error()))
	}

	wg.Wait()
	return err
}

func createStorage(ctx context.Context, config *StorageConfig, logger *slog.Logger) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	store, err := storage.NewSqliteStore(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("reading storage: %w", err)
	}
	logger.Info("storage opened", slog.String("path", store.Path()), slog.String("samples", humanize.Comma(count)))

	return store, nil
}

func createSensors(config *SensorsConfig, samplerConfig *SamplerConfig, logger *slog.Logger) (*sensor.Array, error) {
	options := []func(*sensor.Array){
		sensor.WithSettleReads(samplerConfig.SettleReads),
		sensor.WithLogger(logger),
	}

	switch config.Driver {
	case DriverSimulated:
		d := simulated.New(config.Simulated)
		logger.Warn("using simulated sensors")
		return sensor.NewArray(d, d, d, d, options...)

	case DriverCommand:
		climate, err := command.New(sensor.DeviceClimate, config.Climate, command.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		air, err := command.New(sensor.DeviceAirQuality, config.AirQuality, command.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		light, err := command.New(sensor.DeviceLight, config.Light, command.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		uv, err := command.New(sensor.DeviceUV, config.UV, command.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return sensor.NewArray(climate, air, light, uv, options...)

	default:
		return nil, fmt.Errorf("unknown sensor driver '%s'", config.Driver)
	}
}

// createPublishers connects the configured publishers. A publisher that cannot
// connect is skipped: sampling and storage do not depend on it.
func createPublishers(ctx context.Context, config *PublishConfig, logger *slog.Logger) []publish.Publisher {
	var publishers []publish.Publisher

	if config.Redis != nil {
		if p, err := publish.NewRedisPublisher(ctx, config.Redis); err != nil {
			logger.Warn("redis publisher disabled", slog.String("error", err.Error()))
		} else {
			logger.Info("publishing samples to redis", slog.String("addr", config.Redis.Addr))
			publishers = append(publishers, p)
		}
	}

	if config.MQTT != nil {
		if p, err := publish.NewMQTTPublisher(ctx, config.MQTT); err != nil {
			logger.Warn("mqtt publisher disabled", slog.String("error", err.Error()))
		} else {
			logger.Info("publishing samples to mqtt", slog.String("broker", config.MQTT.Broker))
			publishers = append(publishers, p)
		}
	}

	return publishers
}

func createScheduler(reader sensor.Reader, store sampler.Appender, config *SamplerConfig, publishers []publish.Publisher, logger *slog.Logger) (*sampler.Scheduler, error) {
	options := []func(*sampler.Scheduler){
		sampler.WithCadence(config.Cadence.Std()),
		sampler.WithReadTimeout(config.ReadTimeout.Std()),
		sampler.WithPollInterval(config.PollInterval.Std()),
		sampler.WithPublishTimeout(config.PublishTimeout.Std()),
		sampler.WithTemperatureMode(config.TemperatureMode),
		sampler.WithIntegrationTime(config.UVIntegrationTime),
		sampler.WithDegradedThreshold(config.DegradedThreshold),
		sampler.WithLogger(logger),
	}
	if config.Backoff.Min > 0 {
		options = append(options, sampler.WithBackoff(config.Backoff.Min.Std(), config.Backoff.Max.Std()))
	}
	for _, p := range publishers {
		options = append(options, sampler.WithPublisher(p))
	}

	return sampler.New(reader, store, options...)
}
