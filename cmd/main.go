package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/fyerfyer/policy-QA-system/api"
	"github.com/fyerfyer/policy-QA-system/api/handler"
	"github.com/fyerfyer/policy-QA-system/api/middleware"
	qaconfig "github.com/fyerfyer/policy-QA-system/config"
	"github.com/fyerfyer/policy-QA-system/internal/services"
	"github.com/fyerfyer/policy-QA-system/pkg/taskqueue"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "policy-qa",
		Short:         "Document Q&A over policy PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")
	root.AddCommand(newServeCommand(), newAskCommand())

	if err := root.Execute(); err != nil {
		middleware.GetLogger().WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// loadConfig 加载 .env 和配置文件并初始化日志
func loadConfig() (*qaconfig.Config, *logrus.Logger, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := qaconfig.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := middleware.GetLogger()
	if err := middleware.ConfigureLogger(middleware.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	return cfg, logger, nil
}

// newServeCommand HTTP服务
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
	}
}

func serve(cfg *qaconfig.Config, logger *logrus.Logger) error {
	logger.Info("Starting Document Q&A API")
	gin.SetMode(cfg.Server.Mode)

	shutdownTracing, err := setupTracing(cfg.Tracing.Enable)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracing")
		}
	}()

	app, err := buildApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close(logger)

	// 启用队列时同一进程内处理异步任务
	if app.queue != nil {
		worker, err := taskqueue.NewWorker(app.queue, nil)
		if err != nil {
			return err
		}
		worker.RegisterHandler(taskqueue.TaskHackrxRun, services.NewRunTaskHandler(app.service))
		if err := worker.Start(); err != nil {
			return fmt.Errorf("failed to start task worker: %w", err)
		}
		defer worker.Stop()
		logger.Info("Task worker started")
	}

	router := api.SetupRouter(handler.NewRunHandler(app.service), api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		EnableRuns:  cfg.Database.Enable,
		DebugBodies: gin.Mode() == gin.DebugMode,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-quit:
	}
	logger.Info("Shutting down Document Q&A API")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// newAskCommand 单次运行问答流程并以JSON输出答案
func newAskCommand() *cobra.Command {
	var (
		documentURL string
		questions   []string
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer questions about a document once and print the answers as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			shutdownTracing, err := setupTracing(cfg.Tracing.Enable)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.WithError(err).Warn("Failed to shut down tracing")
				}
			}()

			// 单次运行不需要队列
			cfg.Queue.Enable = false
			app, err := buildApplication(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := app.service.Run(ctx, services.RunRequest{
				DocumentURL: documentURL,
				Questions:   questions,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string][]string{"answers": result.Answers})
		},
	}

	cmd.Flags().StringVarP(&documentURL, "document", "d", "", "URL of the PDF document")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "Question to answer (repeatable)")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}
