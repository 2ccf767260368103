package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/config"
	"carbon-scribe/credit-market/internal/ledger"
	"carbon-scribe/credit-market/internal/notifications"
	"carbon-scribe/credit-market/internal/reports"
	"carbon-scribe/credit-market/pkg/storage"
)

// App holds the components shared by the API and worker processes
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Repository ledger.Repository
	Journal    notifications.Journal
	Dispatcher *notifications.Dispatcher
	Reports    *reports.Service

	awsConfig *aws.Config
	closers   []func(context.Context) error
}

// New opens the ledger store, builds the event dispatcher with every sink
// the configuration enables and creates the reports service
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	a.Dispatcher = notifications.NewDispatcher(logger.Named("events"), notifications.DispatcherConfig{
		Workers:         cfg.Events.Workers,
		QueueSize:       cfg.Events.QueueSize,
		DeliveryTimeout: cfg.Events.DeliveryTimeout,
		RetryInterval:   cfg.Events.RetryInterval,
		RetryMaxElapsed: cfg.Events.RetryMaxElapsed,
	})
	err := a.registerSinks(ctx)
	// closed before the sink connections so queued deliveries can finish
	a.onClose(func(context.Context) error {
		a.Dispatcher.Close()
		return nil
	})
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	var s3 storage.S3Client
	if cfg.Reports.Bucket != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			a.Close(context.Background())
			return nil, err
		}
		s3 = storage.NewS3Client(awsCfg)
	}
	a.Reports = reports.NewService(a.Repository, s3, a.Dispatcher, reports.Config{
		Bucket: cfg.Reports.Bucket,
		Prefix: cfg.Reports.Prefix,
	}, logger.Named("reports"))

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Market.Store {
	case "memory":
		a.Repository = ledger.NewMemoryRepository()
		if a.Config.Events.Journal {
			a.Journal = notifications.NewMemoryJournal()
		}
		a.Logger.Warn("Using in-memory ledger; state is lost on restart")
		return nil

	case "postgres":
		db, err := ledger.OpenPostgres(a.Config.Database.GetDatabaseURL(), ledger.PoolConfig{
			MaxOpenConns:    a.Config.Database.MaxConnections,
			MaxIdleConns:    a.Config.Database.MaxIdleConns,
			ConnMaxLifetime: a.Config.Database.MaxLifetime,
		})
		if err != nil {
			return err
		}
		repo := ledger.NewPostgresRepository(db)
		a.Repository = repo
		a.onClose(func(context.Context) error { return repo.Close() })

		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		if a.Config.Events.Journal {
			journal := notifications.NewGormJournal(db)
			if err := journal.Migrate(); err != nil {
				return fmt.Errorf("failed to migrate event journal: %w", err)
			}
			a.Journal = journal
		}
		a.Logger.Info("Connected to database",
			zap.String("host", a.Config.Database.Host),
			zap.String("database", a.Config.Database.DBName))
		return nil

	default:
		return fmt.Errorf("unknown market store %q", a.Config.Market.Store)
	}
}

func (a *App) registerSinks(ctx context.Context) error {
	events := a.Config.Events
	sinks := []notifications.Sink{notifications.NewLogSink(a.Logger.Named("events"))}

	if a.Journal != nil {
		sinks = append(sinks, a.Journal)
	}

	if events.Mongo.URI != "" {
		client, collection, err := notifications.ConnectMongo(ctx, events.Mongo.URI, events.Mongo.Database, events.Mongo.Collection)
		if err != nil {
			return err
		}
		a.onClose(client.Disconnect)
		sinks = append(sinks, notifications.NewMongoSink(collection))
	}

	if events.NATS.URL != "" {
		nc, js, err := notifications.ConnectJetStream(ctx, events.NATS.URL, events.NATS.Stream, events.NATS.SubjectPrefix, a.Logger)
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return nc.Drain() })
		sinks = append(sinks, notifications.NewNATSSink(js, events.NATS.SubjectPrefix))
	}

	if len(events.Elastic.Addresses) > 0 {
		client, err := notifications.NewElasticClient(events.Elastic.Addresses, events.Elastic.Username, events.Elastic.Password)
		if err != nil {
			return err
		}
		sinks = append(sinks, notifications.NewElasticSink(client, events.Elastic.Index))
	}

	if events.SNS.TopicARN != "" || events.DynamoDB.Table != "" || len(events.SES.To) > 0 {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return err
		}
		if events.SNS.TopicARN != "" {
			sinks = append(sinks, notifications.NewSNSSink(sns.NewFromConfig(awsCfg), events.SNS.TopicARN))
		}
		if events.DynamoDB.Table != "" {
			sinks = append(sinks, notifications.NewDynamoSink(dynamodb.NewFromConfig(awsCfg), events.DynamoDB.Table))
		}
		if len(events.SES.To) > 0 {
			sinks = append(sinks, notifications.NewIssueMailSink(sesv2.NewFromConfig(awsCfg), events.SES.From, events.SES.To))
		}
	}

	for _, sink := range sinks {
		if err := a.Dispatcher.Register(sink); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) aws(ctx context.Context) (aws.Config, error) {
	if a.awsConfig != nil {
		return *a.awsConfig, nil
	}
	cfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:          a.Config.AWS.Region,
		AccessKeyID:     a.Config.AWS.AccessKeyID,
		SecretAccessKey: a.Config.AWS.SecretAccessKey,
		Endpoint:        a.Config.AWS.Endpoint,
	})
	if err != nil {
		return aws.Config{}, err
	}
	a.awsConfig = &cfg
	return cfg, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("Error during shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}
