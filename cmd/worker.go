package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"localpiece/src/core/bloggen"
	"localpiece/src/infrastructure/integrations/storyteller"
	"localpiece/src/infrastructure/job"
	"localpiece/src/log"
	"localpiece/src/storage/minioctrl"
	"localpiece/src/storage/postgres/blogctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background generation worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Initialize logger for watermill components
	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
	db, err := openDatabase()
	if err != nil {
		return err
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(&job.Job{}, &blogctrl.Blog{}, &blogctrl.BlogContent{}); err != nil {
		return err
	}

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetString("minio.image_bucket"),
		viper.GetString("minio.domain"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return err
	}
	if err := minioService.EnsureBucketExists(context.Background()); err != nil {
		return err
	}

	// Initialize blog-generator client; generation calls are slow
	storytellerClient := storyteller.NewClient(
		viper.GetString("storyteller.url"),
		viper.GetString("storyteller.token"),
		&http.Client{Timeout: 5 * time.Minute},
	)

	// Initialize BlogService
	blogService, err := blogctrl.NewBlogService(db)
	if err != nil {
		return err
	}

	// Initialize job repository, pipeline and service
	jobRepo := job.NewPostgresJobRepository(db)
	pipeline := bloggen.NewPipeline(
		jobRepo,
		minioService,
		storytellerClient,
		blogService,
		viper.GetInt("pipeline.upload_workers"),
	)
	jobService := job.NewJobService(amqpPublisher, jobRepo, logger, pipeline)

	// Add handler for processing generation jobs
	router.AddNoPublisherHandler(
		"generation_job_processor",
		job.GenerationTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}
