package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dodo5517/shop-chat/internal/api"
	"github.com/dodo5517/shop-chat/internal/config"
	"github.com/dodo5517/shop-chat/internal/live"
	"github.com/dodo5517/shop-chat/internal/session"
	"github.com/dodo5517/shop-chat/internal/stats"
	"github.com/dodo5517/shop-chat/internal/thread"
	"github.com/dodo5517/shop-chat/internal/transport"
	"github.com/dodo5517/shop-chat/internal/ui"
)

var (
	configPath string
	apiURL     string
	socketURL  string
	token      string
	roomId     int64
	locale     string
	debugAddr  string
	logFile    string
)

func main() {
	flag.StringVar(&configPath, "config", "shop-chat.toml", "path to TOML config file")
	flag.StringVar(&apiURL, "api", config.DefaultAPIBaseURL, "REST API base url")
	flag.StringVar(&socketURL, "socket", config.DefaultSocketURL, "STOMP endpoint url")
	flag.StringVar(&token, "token", "", "access token (defaults to $SHOP_CHAT_TOKEN)")
	flag.Int64Var(&roomId, "room", 0, "room to open on start")
	flag.StringVar(&locale, "locale", config.DefaultLocale, "locale for timestamps")
	flag.StringVar(&debugAddr, "debug-addr", "", "address to serve /debug/vars on, empty to disable")
	flag.StringVar(&logFile, "log-file", config.DefaultLogFile, "log file, - for stderr")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	out, closeLog, err := openLog(cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "log file:", err)
		os.Exit(1)
	}
	defer closeLog()

	logger := log.New(out, "[shop-chat] ", log.LstdFlags)

	if err := run(cfg, logger); err != nil {
		logger.Println("exit:", err)
		fmt.Fprintln(os.Stderr, err)
		closeLog()
		os.Exit(1)
	}

	logger.Println("shutdown complete")
}

// loadConfig reads the config file and applies flags that were set on the
// command line over it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("SHOP_CHAT_TOKEN")
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api":
			cfg.APIBaseURL = apiURL
		case "socket":
			cfg.SocketURL = socketURL
		case "token":
			cfg.AccessToken = token
		case "room":
			cfg.RoomId = roomId
		case "locale":
			cfg.Locale = locale
		case "debug-addr":
			cfg.DebugAddr = debugAddr
		case "log-file":
			cfg.LogFile = logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func openLog(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stderr, func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	return f, func() { f.Close() }, nil
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sp stats.StatsProvider = stats.Nop{}
	if cfg.DebugAddr != "" {
		mux := http.NewServeMux()
		statsUpdater := stats.NewStatsUpdater(mux)
		statsUpdater.Run()
		defer statsUpdater.Stop()
		sp = statsUpdater

		srv := stats.NewDebugServer(cfg.DebugAddr, mux, logger)
		go func() {
			logger.Printf("debug server listening on %s", cfg.DebugAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Println("debug server:", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Println("debug server shutdown:", err)
			}
		}()
	}

	client, err := api.NewClient(logger, cfg.APIBaseURL, cfg.AccessToken)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}

	wsURL, err := transport.WebsocketURL(cfg.SocketURL)
	if err != nil {
		return err
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("parse socket url: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.AccessToken)
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		conn, err := transport.Dial(ctx, wsURL, header)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	manager := live.NewManager(logger, dial, live.Options{
		ReconnectDelay: cfg.ReconnectDelay.Duration,
		HeartBeat:      cfg.HeartBeat.Duration,
		Host:           u.Hostname(),
		AccessToken:    cfg.AccessToken,
	}, sp)

	s, err := session.New(logger, client, manager)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Printf("session %s started (api %s, socket %s)", s.Id(), cfg.APIBaseURL, wsURL)

	model := ui.New(ctx, logger, s, ui.Options{
		OpenRoom: cfg.RoomId,
		Locale:   thread.ParseLocale(cfg.Locale),
		Location: time.Local,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}

	return nil
}
