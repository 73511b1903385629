package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/anonymize"
	"github.com/sells-group/doctrans/internal/config"
	"github.com/sells-group/doctrans/internal/format"
	"github.com/sells-group/doctrans/internal/mt"
	"github.com/sells-group/doctrans/internal/pipeline"
	"github.com/sells-group/doctrans/internal/queue"
	"github.com/sells-group/doctrans/internal/resilience"
	"github.com/sells-group/doctrans/internal/store"
	anthropicpkg "github.com/sells-group/doctrans/pkg/anthropic"
	"github.com/sells-group/doctrans/pkg/anonymizer"
	"github.com/sells-group/doctrans/pkg/mtclient"
)

// appEnv holds the store, clients, queue and pipeline needed by the serve,
// worker and task commands.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.Breakers
	// Local is set when queue.backend is local; the caller runs it.
	Local    *queue.Local
	Temporal client.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Temporal != nil {
		e.Temporal.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates cfg for mode, opens and migrates the store and builds
// the Pipeline with its queue. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{
		Store:    st,
		Breakers: resilience.NewBreakers(resilience.BreakerConfigFrom(cfg.Resilience.FailureThreshold, cfg.Resilience.ResetTimeoutSecs)),
	}

	translator, err := initTranslator(cfg, env.Breakers)
	if err != nil {
		env.Close()
		return nil, err
	}

	// The queue handler needs the pipeline and the pipeline needs the queue.
	var p *pipeline.Pipeline
	handler := func(ctx context.Context, job queue.Job) error {
		return p.HandleJob(ctx, job)
	}

	var q queue.Queue
	switch cfg.Queue.Backend {
	case "temporal":
		tc, err := dialTemporal(cfg.Temporal)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Temporal = tc
		q = queue.NewTemporal(tc, temporalQueueConfig(cfg))
	default:
		env.Local = queue.NewLocal(queue.LocalConfig{
			Workers: cfg.Queue.Workers,
			Buffer:  cfg.Queue.Buffer,
			Retry:   resilience.DefaultRetryPolicy().
				WithAttempts(cfg.Queue.MaxAttempts).
				WithBackoff(time.Duration(cfg.Queue.InitialBackoffMs) * time.Millisecond),
		}, handler)
		q = env.Local
	}

	p = pipeline.New(st, q, format.DefaultRegistry(), initAnonymizer(cfg, env.Breakers), translator)
	env.Pipeline = p

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("mt", cfg.MT.Provider),
		zap.Bool("anonymizer", cfg.Anonymizer.Enabled),
	)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "doctrans.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initAnonymizer returns nil when anonymization is disabled.
func initAnonymizer(c *config.Config, breakers *resilience.Breakers) pipeline.Anonymizer {
	if !c.Anonymizer.Enabled {
		zap.L().Warn("anonymizer disabled, segments are translated from source text")
		return nil
	}
	ac := anonymizer.NewClient(c.Anonymizer.Key,
		anonymizer.WithBaseURL(c.Anonymizer.URL),
		anonymizer.WithTimeout(c.Anonymizer.Timeout()),
		anonymizer.WithRetry(resilience.ServiceRetry(resilience.ServiceAnonymizer, "anonymize", c.Resilience.MaxAttempts)),
		anonymizer.WithBreaker(breakers.Get(resilience.ServiceAnonymizer)),
	)
	return anonymize.NewMerger(ac,
		anonymize.WithTimeout(c.Anonymizer.Timeout()),
		anonymize.WithFailClosed(c.Anonymizer.FailClosed),
	)
}

func initTranslator(c *config.Config, breakers *resilience.Breakers) (mt.Client, error) {
	var base mt.Client
	switch c.MT.Provider {
	case "anthropic":
		ac := anthropicpkg.NewClient(c.Anthropic.Key, c.Anthropic.BaseURL)
		base = mt.NewLLMTranslator(ac, c.Anthropic.Model, c.Anthropic.MaxTokens)
	case "http", "":
		mc := mtclient.NewClient(c.MT.Key,
			mtclient.WithBaseURL(c.MT.URL),
			mtclient.WithHTTPClient(&http.Client{Timeout: c.MT.Timeout()}),
			mtclient.WithRateLimit(c.MT.RatePerSec),
			mtclient.WithRetry(resilience.ServiceRetry(resilience.ServiceMT, "translate", c.Resilience.MaxAttempts)),
			mtclient.WithBreaker(breakers.Get(resilience.ServiceMT)),
		)
		base = mt.NewHTTPTranslator(mc)
	default:
		return nil, eris.Errorf("unsupported mt provider: %s", c.MT.Provider)
	}
	return mt.NewBatcher(base, c.MT.BatchSize), nil
}

func dialTemporal(c config.TemporalConfig) (client.Client, error) {
	tc, err := client.Dial(client.Options{
		HostPort:  c.HostPort,
		Namespace: c.Namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "dial temporal %s", c.HostPort)
	}
	return tc, nil
}

func temporalQueueConfig(c *config.Config) queue.TemporalConfig {
	return queue.TemporalConfig{
		TaskQueue:          c.Temporal.TaskQueue,
		ActivityTimeout:    c.Temporal.ActivityTimeout(),
		InitialInterval:    time.Duration(c.Queue.InitialBackoffMs) * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    int32(c.Temporal.MaxAttempts), //nolint:gosec
	}
}
