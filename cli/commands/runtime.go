package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters"
	"github.com/songifi/LMS-Backend-sub004/adapters/memory"
	"github.com/songifi/LMS-Backend-sub004/adapters/postgres"
	"github.com/songifi/LMS-Backend-sub004/adapters/sqlite"
	"github.com/songifi/LMS-Backend-sub004/cli/config"
	"github.com/songifi/LMS-Backend-sub004/logging"
	"github.com/songifi/LMS-Backend-sub004/middleware/metrics"
	"github.com/songifi/LMS-Backend-sub004/middleware/tracing"
	"github.com/songifi/LMS-Backend-sub004/publisher/kafka"
	"github.com/songifi/LMS-Backend-sub004/publisher/sns"
	"github.com/songifi/LMS-Backend-sub004/readmodel/redis"
	"github.com/songifi/LMS-Backend-sub004/serializer/msgpack"
	"github.com/songifi/LMS-Backend-sub004/serializer/protobuf"
)

// pingTimeout bounds the connection check made when a backend is opened.
const pingTimeout = 5 * time.Second

// StoreAdapter is what the CLI needs from an event store backend.
type StoreAdapter interface {
	adapters.EventStoreAdapter
	adapters.SnapshotAdapter
	adapters.HealthChecker
}

// Runtime is the wired record service a command works with.
type Runtime struct {
	Config      *config.Config
	Adapter     StoreAdapter
	Service     *academic.RecordService
	Projections *academic.ProjectionManager
	Grades      *academic.GradesProjection
	Enrollments *academic.EnrollmentsProjection
	Degrees     *academic.DegreeProgressProjection
	Logger      academic.Logger
	Metrics     *prometheus.Registry

	closers []func() error
}

// Close releases everything the runtime opened, newest first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// OpenRuntime connects to the configured backends and wires the record
// service. When read models live in memory they are rebuilt from the log
// before returning, so reads and projection updates see the full history.
func OpenRuntime(ctx context.Context, cfg *config.Config, logOutput io.Writer) (rt *Runtime, err error) {
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", problems[0])
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})
	if err != nil {
		return nil, err
	}

	rt = &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Adapter, err = openAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.onClose(rt.Adapter.Close)

	if err := prepareSchema(ctx, cfg, rt.Adapter); err != nil {
		return nil, err
	}

	serializer, err := newSerializer(cfg.Store.Serializer)
	if err != nil {
		return nil, err
	}

	var tracer *tracing.Tracer
	if cfg.Tracing.Enabled {
		tracer, err = rt.openTracer(logOutput)
		if err != nil {
			return nil, err
		}
	}

	var collector *metrics.Metrics
	if cfg.Metrics.Enabled {
		collector, err = rt.openMetrics(cfg.Metrics, logOutput)
		if err != nil {
			return nil, err
		}
	}

	if err := rt.openReadModels(ctx, cfg); err != nil {
		return nil, err
	}
	projections := []academic.Projection{rt.Grades, rt.Enrollments, rt.Degrees}

	publishers, err := rt.openPublishers(cfg)
	if err != nil {
		return nil, err
	}

	var eventAdapter adapters.EventStoreAdapter = rt.Adapter
	var middleware []academic.Middleware
	if tracer != nil {
		eventAdapter = tracing.NewEventStoreMiddleware(rt.Adapter, tracer)
		for i, p := range projections {
			projections[i] = tracing.NewProjectionMiddleware(p, tracer)
		}
		for i, p := range publishers {
			publishers[i] = tracing.NewPublisherMiddleware(p, tracer)
		}
		middleware = append(middleware, tracing.CommandMiddleware(tracer))
	}
	managerOpts := []academic.ProjectionManagerOption{academic.WithProjectionLogger(logger)}
	if collector != nil {
		eventAdapter = collector.WrapEventStore(eventAdapter)
		managerOpts = append(managerOpts, academic.WithProjectionMetrics(collector))
		middleware = append(middleware, collector.CommandMiddleware())
	}

	store := academic.NewEventStore(eventAdapter,
		academic.WithSerializer(serializer),
		academic.WithLogger(logger))
	snapshots := academic.NewSnapshotStore(rt.Adapter,
		academic.WithSnapshotSerializer(serializer))

	rt.Projections = academic.NewProjectionManager(store, projections, managerOpts...)

	repo := academic.NewRepository(store, snapshots,
		academic.WithProjectionManager(rt.Projections),
		academic.WithPublishers(publishers...),
		academic.WithSnapshotCadence(cfg.Store.SnapshotCadence),
		academic.WithRepositoryLogger(logger))

	rt.Service = academic.NewRecordService(repo,
		academic.WithServiceLogger(logger),
		academic.WithCommandMiddleware(middleware...))

	if cfg.ReadModels.Backend == "" || cfg.ReadModels.Backend == config.ReadModelsMemory {
		if err := rt.Projections.RebuildAll(ctx); err != nil {
			return nil, fmt.Errorf("failed to load read models: %w", err)
		}
	}

	return rt, nil
}

// openAdapter opens the configured event store and checks the connection.
func openAdapter(ctx context.Context, cfg *config.Config) (StoreAdapter, error) {
	var adapter StoreAdapter

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		a, err := postgres.NewAdapter(cfg.DatabaseURL(), postgres.WithSchema(cfg.Database.Schema))
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
		}
		adapter = a
	case config.DriverSQLite:
		a, err := sqlite.Open(cfg.DatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		adapter = a
	case config.DriverMemory:
		adapter = memory.NewAdapter()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Database.Driver, err)
	}
	return adapter, nil
}

// prepareSchema applies the embedded schema of local stores. A postgres
// schema is owned by "academic migrate up" and only checked here.
func prepareSchema(ctx context.Context, cfg *config.Config, adapter StoreAdapter) error {
	if cfg.Database.Driver != config.DriverPostgres {
		if err := adapter.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s schema: %w", cfg.Database.Driver, err)
		}
		return nil
	}

	migrator, ok := adapter.(adapters.Migrator)
	if !ok {
		return nil
	}
	version, err := migrator.MigrationVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == 0 {
		return fmt.Errorf("event store schema not found, run 'academic migrate up' first")
	}
	return nil
}

func newSerializer(name string) (academic.Serializer, error) {
	switch name {
	case "", "json":
		return academic.NewJSONSerializer(), nil
	case "msgpack":
		return msgpack.NewSerializer(), nil
	case "protobuf":
		return protobuf.NewSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
}

func (r *Runtime) openTracer(out io.Writer) (*tracing.Tracer, error) {
	if out == nil {
		out = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	r.onClose(func() error { return provider.Shutdown(context.Background()) })

	return tracing.NewTracer(
		tracing.WithTracerProvider(provider),
		tracing.WithServiceName("academic-cli"),
	), nil
}

// openMetrics registers the collectors on a private registry and dumps it
// in the prometheus text format when the runtime closes.
func (r *Runtime) openMetrics(cfg config.MetricsConfig, out io.Writer) (*metrics.Metrics, error) {
	collector := metrics.New(metrics.WithMetricsServiceName("academic-cli"))
	registry := prometheus.NewRegistry()
	if err := collector.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	r.Metrics = registry

	r.onClose(func() error {
		w := out
		if cfg.Output != "" {
			f, err := os.Create(cfg.Output)
			if err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
			defer f.Close()
			w = f
		}
		if w == nil {
			w = os.Stderr
		}
		return writeMetrics(w, registry)
	})
	return collector, nil
}

func writeMetrics(w io.Writer, registry prometheus.Gatherer) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Read model table and hash names.
const (
	gradesReadModel      = "grade_views"
	enrollmentsReadModel = "enrollment_views"
	degreesReadModel     = "degree_progress_views"
)

func (r *Runtime) openReadModels(ctx context.Context, cfg *config.Config) error {
	switch cfg.ReadModels.Backend {
	case "", config.ReadModelsMemory:
		r.Grades = academic.NewGradesProjection(academic.NewMemoryReadModelStore[academic.GradeView]())
		r.Enrollments = academic.NewEnrollmentsProjection(academic.NewMemoryReadModelStore[academic.EnrollmentView]())
		r.Degrees = academic.NewDegreeProgressProjection(academic.NewMemoryReadModelStore[academic.DegreeProgressView]())
		return nil

	case config.ReadModelsRedis:
		rc := redis.DefaultConfig()
		rc.Addr = cfg.ReadModels.RedisAddr
		rc.Password = cfg.ReadModels.RedisPassword
		rc.DB = cfg.ReadModels.RedisDB
		client, err := redis.NewClient(ctx, rc)
		if err != nil {
			return err
		}
		r.onClose(client.Close)
		return r.useRedis(client)

	case config.ReadModelsPostgres:
		pg, ok := r.Adapter.(*postgres.PostgresAdapter)
		if !ok {
			return fmt.Errorf("postgres read models need the postgres driver")
		}
		return r.usePostgres(pg, cfg.Database.Schema)

	default:
		return fmt.Errorf("unknown read model backend %q", cfg.ReadModels.Backend)
	}
}

func (r *Runtime) useRedis(client goredis.UniversalClient) error {
	r.Grades = academic.NewGradesProjection(redis.NewStore[academic.GradeView](client, gradesReadModel))
	r.Enrollments = academic.NewEnrollmentsProjection(redis.NewStore[academic.EnrollmentView](client, enrollmentsReadModel))
	r.Degrees = academic.NewDegreeProgressProjection(redis.NewStore[academic.DegreeProgressView](client, degreesReadModel))
	return nil
}

func (r *Runtime) usePostgres(pg *postgres.PostgresAdapter, schema string) error {
	opt := postgres.WithReadModelSchema(schema)

	grades, err := postgres.NewReadModelStore[academic.GradeView](pg.DB(), gradesReadModel, opt)
	if err != nil {
		return err
	}
	enrollments, err := postgres.NewReadModelStore[academic.EnrollmentView](pg.DB(), enrollmentsReadModel, opt)
	if err != nil {
		return err
	}
	degrees, err := postgres.NewReadModelStore[academic.DegreeProgressView](pg.DB(), degreesReadModel, opt)
	if err != nil {
		return err
	}

	r.Grades = academic.NewGradesProjection(grades)
	r.Enrollments = academic.NewEnrollmentsProjection(enrollments)
	r.Degrees = academic.NewDegreeProgressProjection(degrees)
	return nil
}

func (r *Runtime) openPublishers(cfg *config.Config) ([]academic.EventPublisher, error) {
	var publishers []academic.EventPublisher

	if len(cfg.Publishing.KafkaBrokers) > 0 {
		p := kafka.New(
			kafka.WithBrokers(cfg.Publishing.KafkaBrokers...),
			kafka.WithTopic(cfg.Publishing.KafkaTopic),
		)
		r.onClose(p.Close)
		publishers = append(publishers, p)
	}

	if cfg.Publishing.SNSTopicARN != "" {
		publishers = append(publishers, sns.New(
			sns.WithSNSClient(newSNSClient(cfg.Publishing)),
			sns.WithTopicARN(cfg.Publishing.SNSTopicARN),
		))
	}

	return publishers, nil
}

// newSNSClient builds an SNS client from the configured region and the
// standard AWS_* credential variables.
func newSNSClient(cfg config.PublishingConfig) *awssns.Client {
	opts := awssns.Options{
		Region: cfg.SNSRegion,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			creds := aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "academic-env",
			}
			if !creds.HasKeys() {
				return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
			}
			return creds, nil
		}),
	}
	if cfg.SNSEndpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.SNSEndpoint)
	}
	return awssns.New(opts)
}
