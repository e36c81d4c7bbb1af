package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/dgraph-io/ristretto"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/helicon-e2e/trailhead/internal/db/elasticsearch/bootstrapper"
	esClient "github.com/helicon-e2e/trailhead/internal/db/elasticsearch/client"
	historyModel "github.com/helicon-e2e/trailhead/internal/history/model"
	historyService "github.com/helicon-e2e/trailhead/internal/history/service"
	trackingModel "github.com/helicon-e2e/trailhead/internal/tracking/model"
	trackingService "github.com/helicon-e2e/trailhead/internal/tracking/service"
	"github.com/helicon-e2e/trailhead/internal/vector"
	"github.com/helicon-e2e/trailhead/pkg/cache"
	"github.com/helicon-e2e/trailhead/pkg/event_bus"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	historyStore := buildHistoryStore(logger)

	index, err := vector.NewChromemIndex(vector.ChromemConfig{}, logger)
	if err != nil {
		logger.Fatal("Failed to create pattern similarity index", zap.Error(err))
	}

	patternStore := historyService.NewInMemoryPatternStore()
	patternService := historyService.NewPatternService(
		historyStore,
		patternStore,
		index,
		historyService.PatternServiceConfig{},
		logger,
	)

	bus := EventBus.New()
	traceBus := event_bus.NewTypedEventBus[trackingModel.Trace, trackingModel.Trace](bus, logger)
	tracker := trackingService.NewCorrelationTracker(
		trackingService.NewEventBusTraceSink(traceBus, logger),
		logger,
	)

	// The sweeper force-fails aged traces itself, so the recorder only purges
	// execution histories.
	recorder := historyService.NewHistoryRecorder(
		historyStore,
		patternService,
		nil,
		os.Getenv("TRAILHEAD_ENVIRONMENT"),
		logger,
	)
	err = traceBus.Subscribe(event_bus.TraceCompletedTopic, func(trace trackingModel.Trace) error {
		recorder.RecordCompletedTrace(trace)
		return nil
	}, false)
	if err != nil {
		logger.Fatal("Failed to subscribe history recorder", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := trackingService.NewSweeper(tracker, recorder, trackingService.SweeperConfig{}, logger)
	sweeper.Start(ctx)

	logger.Info("Trailhead correlation core started")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cancel()
	traceBus.WaitAsync()
	if flusher, ok := historyStore.(*historyService.EsExecutionHistoryStore); ok {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := flusher.Flush(flushCtx); err != nil {
			logger.Error("Failed to flush history buffer on shutdown", zap.Error(err))
		}
	}
	logger.Info("Trailhead correlation core stopped")
}

// buildHistoryStore returns the Elasticsearch-backed store when a cluster is
// configured, and the in-memory store otherwise.
func buildHistoryStore(logger *zap.Logger) historyService.ExecutionHistoryStore {
	if os.Getenv("ELASTICSEARCH_URL") == "" {
		logger.Info("No Elasticsearch configured, using in-memory history store")
		return historyService.NewInMemoryExecutionHistoryStore()
	}

	es, err := elasticsearch.NewDefaultClient()
	if err != nil {
		logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
	}

	bs := bootstrapper.NewBootstrapper(es, logger)
	if err := bs.BootstrapElasticsearch(); err != nil {
		logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
	}

	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: (1 << 20) * 10,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		logger.Fatal("Failed to create history cache", zap.Error(err))
	}

	sc := esClient.NewStoreClientImpl(es, esClient.Async)
	buffer := cache.NewWriteBehindCacheImpl[historyModel.ExecutionHistory](
		ristrettoCache,
		sc,
		bootstrapper.HistoryIndexName,
		0,
		logger,
	)
	return historyService.NewEsExecutionHistoryStore(sc, buffer, logger)
}
