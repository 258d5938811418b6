package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "localpiece/handler/http"
	"localpiece/src/infrastructure/job"
	"localpiece/src/log"
	"localpiece/src/storage/minioctrl"
	"localpiece/src/storage/postgres/userctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the blog API server",
	Long:  `The serve command starts the HTTP server that accepts AI blog generation jobs and answers status queries.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	// Initialize PostgreSQL connection
	db, err := openDatabase()
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}

	if err := db.AutoMigrate(&job.Job{}, &userctrl.User{}); err != nil {
		log.Error(err, "Failed to run migrations")
		return
	}

	// Initialize AMQP publisher for job scheduling
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP publisher")
		return
	}
	defer amqpPublisher.Close()

	// Initialize MinioService so submissions fail fast when object
	// storage is misconfigured
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetString("minio.image_bucket"),
		viper.GetString("minio.domain"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "Failed to initialize minio service")
		return
	}
	if err := minioService.EnsureBucketExists(context.Background()); err != nil {
		log.Error(err, "Failed to ensure image bucket exists")
		return
	}

	// Initialize job service; the server only enqueues, the worker runs
	// the pipeline
	jobRepo := job.NewPostgresJobRepository(db)
	jobService := job.NewJobService(amqpPublisher, jobRepo, watermill.NewStdLogger(false, false), nil)

	userService := userctrl.NewUserService(db)

	// Initialize HTTP handler
	handler := httpHdlr.NewAiBlogHandler(
		jobService,
		userService,
		viper.GetInt("intake.max_images"),
		viper.GetInt64("intake.max_total_bytes"),
	)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}

	log.Info("Server stopped")
}

func openDatabase() (*gorm.DB, error) {
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}
