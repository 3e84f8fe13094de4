/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deckrag/handler/http/deck"
	"deckrag/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deck chat server",
	Long:  `The serve command starts an HTTP server to upload presentations, index them and chat about them.`,
	RunE:  RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("initialize", false, "initialize the model session from llm.* config at startup")
	viper.BindPFlag("llm.auto_initialize", serveCmd.Flags().Lookup("initialize"))
}

func RunServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	publisher, closer, err := newEventPublisher()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	svc, files, err := newService(ctx, publisher)
	if err != nil {
		return fmt.Errorf("failed to build deck service: %w", err)
	}

	if viper.GetBool("llm.auto_initialize") {
		if err := svc.Initialize(ctx, settingsFromConfig()); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
	}

	deckHandler := deck.NewHandler(
		svc,
		files,
		viper.GetString("server.upload_root"),
		viper.GetInt64("server.max_upload_mb")<<20,
	)

	// Setup gin router
	r := gin.Default()
	r.Use(deck.CORS(viper.GetStringSlice("server.cors_origins")))

	// Register routes
	deckHandler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr, "storage", viper.GetString("storage.backend"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			os.Exit(1)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}
