package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AllanGomesCorrea/QRmenu-sub001/config"
	"github.com/AllanGomesCorrea/QRmenu-sub001/notify"
	"github.com/AllanGomesCorrea/QRmenu-sub001/router"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

func main() {
	utils.InitLogger()
	cfg := config.Load()
	utils.SetLevel(cfg.LogLevel)
	utils.SetJWTSecret(cfg.Auth.JWTSecret)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize DB
	db, err := config.InitDB(cfg.DB)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := config.AutoMigrate(db); err != nil {
		utils.ErrorLogger.Fatalf("%v", err)
	}

	deps := router.Deps{Dispatcher: services.LogDispatcher{}}
	var telegram *notify.TelegramSink
	if cfg.Telegram.Enabled() {
		telegram, err = notify.NewTelegramBot(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.CurrencySymbol)
		if err != nil {
			utils.ErrorLogger.Errorf("Telegram alerts disabled: %v", err)
		} else {
			deps.Sinks = append(deps.Sinks, telegram)
		}
	}

	server := router.NewServer(db, cfg, deps)
	server.Sweeper.Start()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Engine,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.InfoLogger.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server.Sweeper.Stop()
	server.Hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}
	if telegram != nil {
		telegram.Close()
	}
	utils.InfoLogger.Println("Server exited")
}
