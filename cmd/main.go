package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/realtime"
	"github.com/practice-sem-2/messaging-service/internal/server"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
	"github.com/practice-sem-2/messaging-service/internal/suggest"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func initLogger(level string) *logrus.Logger {

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.
			WithField("log_level", level).
			Warning("specified invalid log level")
	} else {
		logger.SetLevel(logLevel)
		logger.
			WithField("log_level", level).
			Infof("specified %s log level", logLevel.String())
	}

	return logger
}

func initDB(dsn string, logger *logrus.Logger) *sqlx.DB {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		logger.Fatalf("can't connect to database: %s", err.Error())
	}

	err = db.Ping()

	if err != nil {
		logger.Fatalf("database ping failed: %s", err.Error())
	}

	logger.Info("successfully connected to database")
	return db
}

func runMigrations(dsn string, logger *logrus.Logger) {
	dir := viper.GetString("MIGRATIONS_DIR")
	if dir == "" {
		logger.Info("MIGRATIONS_DIR is not set, skipping migrations")
		return
	}

	err := storage.Migrate(dir, storage.MigrationsDSN(dsn, viper.GetString("MIGRATIONS_DSN")))
	if err != nil {
		logger.Fatalf("can't apply migrations: %s", err.Error())
	}
	logger.WithField("dir", dir).Info("migrations applied")
}

// initKafka connects to the brokers listed in KAFKA_BROKERS. Without brokers the
// update feed is disabled and nil is returned.
func initKafka(logger *logrus.Logger) sarama.Client {
	brokers := viper.GetString("KAFKA_BROKERS")
	if len(brokers) == 0 {
		logger.Warn("KAFKA_BROKERS is not set, live updates are disabled")
		return nil
	}

	addrs := strings.Split(brokers, ",")
	config := sarama.NewConfig()
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Timeout = 10 * time.Second
	config.Producer.Return.Successes = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Offsets.AutoCommit.Enable = false
	client, err := sarama.NewClient(addrs, config)

	if err != nil {
		logger.WithError(err).Fatalf("can't connect to kafka")
	}

	return client
}

func initVerifier(logger *logrus.Logger) *auth.Verifier {
	verifier, err := auth.NewVerifierFromFile(viper.GetString("JWT_PUBLIC_KEY_PATH"), viper.GetString("JWT_ISSUER"))

	if err != nil {
		logger.Fatalf("verifier can't read public key: %s", err.Error())
	}
	return verifier
}

func splitList(raw string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "can't load .env: %s\n", err.Error())
	}
	viper.AutomaticEnv()
	viper.SetDefault("UPDATES_TOPIC", "updates")
	viper.SetDefault("AI_SUGGEST_TIMEOUT", 10*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer stop()

	var host string
	var port int
	var grpcPort int
	var logLevel string

	flag.IntVar(&port, "port", 80, "port on which http server will be started")
	flag.IntVar(&grpcPort, "grpc-port", 9090, "port on which grpc health server will be started")
	flag.StringVar(&host, "host", "0.0.0.0", "host on which servers will be started")
	flag.StringVar(&logLevel, "log", "info", "log level")

	flag.Parse()

	logger := initLogger(logLevel)

	dsn := viper.GetString("DB_DSN")
	db := initDB(dsn, logger)
	defer func(db *sqlx.DB) {
		err := db.Close()
		if err != nil {
			logger.Errorf("during db connection close an error occurred: %s", err.Error())
		}
	}(db)
	runMigrations(dsn, logger)

	topic := viper.GetString("UPDATES_TOPIC")
	hub := realtime.NewHub(logger)

	var producer sarama.SyncProducer
	if kafka := initKafka(logger); kafka != nil {
		defer kafka.Close()

		p, err := sarama.NewSyncProducerFromClient(kafka)
		if err != nil {
			logger.WithError(err).Fatal("can't create producer")
		}
		producer = p
		defer p.Close()

		consumer, err := sarama.NewConsumerFromClient(kafka)
		if err != nil {
			logger.WithError(err).Fatal("can't create consumer")
		}
		defer consumer.Close()
		feed := realtime.NewFeed(consumer, topic, hub, logger)
		go func() {
			if err := feed.Run(ctx); err != nil {
				logger.WithError(err).Error("update feed stopped")
			}
		}()
	}

	store := storage.NewRegistry(db, producer, &storage.UpdatesStoreConfig{
		UpdatesTopic: topic,
	}).WithLogger(logger.WithField("component", "registry"))

	health := server.NewHealth(db)
	chatServer := server.NewChatServer(server.Usecases{
		Users:         usecase.NewUsersUsecase(store),
		Conversations: usecase.NewConversationsUsecase(store),
		Messages:      usecase.NewMessagesUsecase(store),
		Invites:       usecase.NewInvitesUsecase(store),
		SearchHistory: usecase.NewSearchHistoryUsecase(store),
	}, server.Options{
		Verifier:    initVerifier(logger),
		Validate:    validator.New(),
		Suggester:   suggest.NewClient(viper.GetString("AI_SUGGEST_URL"), viper.GetDuration("AI_SUGGEST_TIMEOUT"), logger),
		Hub:         hub,
		Health:      health,
		CORSOrigins: splitList(viper.GetString("CORS_ORIGINS")),
	}, logger)

	grpcAddress := fmt.Sprintf("%s:%d", host, grpcPort)
	lis, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		logger.Fatalf("can't listen to address: %s", err.Error())
	}
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	_ = health.Check(ctx)

	go func() {
		logger.Infof("grpc health server listening on %s", grpcAddress)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Errorf("grpc serving error: %s", err.Error())
		}
	}()

	address := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              address,
		Handler:           chatServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("shutdown signal caught. Gracefully shutdown")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("http shutdown error: %s", err.Error())
		}
		grpcServer.GracefulStop()
	}()

	logger.Infof("start listening on %s", address)
	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http serving error: %s", err.Error())
	}
	<-stopped
}
