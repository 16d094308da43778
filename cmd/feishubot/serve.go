package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/keepmind9/feishubot/internal/logger"
	"github.com/keepmind9/feishubot/pkg/feishu"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	replyTimeout    = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

var (
	configFile string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and echo incoming text messages",
		Long: `Start the webhook server: answer Feishu URL verification challenges,
receive message events, and reply to text messages by echoing them back to
the sender. Credentials come from the config file or from the APP_ID and
APP_SECRET environment variables (a local .env file is honored).`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (optional)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; ignore when absent
	_ = godotenv.Load()

	config := DefaultConfig()
	if configFile != "" {
		loaded, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		config = loaded
	}

	if err := logger.Init(logger.Config{
		Level:        config.Logging.Level,
		File:         config.Logging.File,
		MaxSize:      config.Logging.MaxSize,
		MaxBackups:   config.Logging.MaxBackups,
		MaxAge:       config.Logging.MaxAge,
		Compress:     config.Logging.Compress,
		EnableStdout: config.Logging.EnableStdout,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := buildClient(config)
	if err != nil {
		return err
	}
	defer client.Close()

	hook := feishu.NewWebhookHandler(feishu.WithEndpoint(config.Server.WebhookPath))
	hook.OnMessage(feishu.MsgTypeText, func(event *feishu.Event) {
		text, ok := event.TextContent()
		if !ok || event.Sender == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()

		messageID, err := client.SendText(ctx, event.Sender.SenderID.OpenID, text)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"open_id": event.Sender.SenderID.OpenID,
				"error":   err,
			}).Error("echo-reply-failed")
			return
		}
		logger.WithField("message_id", messageID).Info("echo-reply-sent")
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	hook.Attach(e)

	logger.WithFields(logrus.Fields{
		"port":         config.Server.Port,
		"webhook_path": config.Server.WebhookPath,
	}).Info("webhook-server-starting")

	errChan := make(chan error, 1)
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", config.Server.Port)); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down gracefully...", sig)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("webhook-server-stopped")
	return nil
}

func buildClient(config *Config) (*feishu.Client, error) {
	if config.Feishu.AppID != "" && config.Feishu.AppSecret != "" {
		return feishu.NewClient(config.Feishu.AppID, config.Feishu.AppSecret, config.Feishu.Host), nil
	}
	return feishu.FromEnv(config.Feishu.Host)
}
