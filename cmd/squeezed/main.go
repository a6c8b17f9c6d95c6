// Package main is the entry point for the squeezed daemon.
// squeezed follows one Squeezebox player through the media server's command
// line interface and exposes it to an OSD web page, the desktop media
// session and a local control socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/horchi/vdr-plugin-squeezebox/internal/artwork"
	"github.com/horchi/vdr-plugin-squeezebox/internal/config"
	"github.com/horchi/vdr-plugin-squeezebox/internal/discovery"
	"github.com/horchi/vdr-plugin-squeezebox/internal/history"
	"github.com/horchi/vdr-plugin-squeezebox/internal/ipc"
	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
	"github.com/horchi/vdr-plugin-squeezebox/internal/loop"
	"github.com/horchi/vdr-plugin-squeezebox/internal/media"
	"github.com/horchi/vdr-plugin-squeezebox/internal/osdweb"
)

// Version is set at build time via ldflags
var Version = "dev"

const coverCacheSize = 32

// Flags holds the command line settings
type Flags struct {
	SocketPath string
	ConfigDir  string
	Host       string
	Port       int
	PlayerMAC  string
	OSDAddr    string
	NoOSD      bool
	LogLevel   string
	Verbose    bool
	Version    bool
}

func main() {
	flags := parseFlags()

	if flags.Version {
		fmt.Println("squeezed", Version)
		return
	}

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, flags); err != nil {
		slog.Error("Fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.SocketPath, "socket", "", "control socket path (default: auto-generated based on UID)")
	flag.StringVar(&f.ConfigDir, "config", "", "configuration directory (default: ~/.config/squeezed)")
	flag.StringVar(&f.Host, "host", "", "media server host, overrides config and discovery")
	flag.IntVar(&f.Port, "port", 0, "media server CLI port")
	flag.StringVar(&f.PlayerMAC, "player", "", "MAC of the player to follow")
	flag.StringVar(&f.OSDAddr, "osd", "", "OSD web listen address")
	flag.BoolVar(&f.NoOSD, "no-osd", false, "disable the OSD web server")
	flag.StringVar(&f.LogLevel, "log-level", "", "log level (error, warn, info, debug)")
	flag.BoolVarP(&f.Verbose, "verbose", "v", false, "enable debug logging")
	flag.BoolVar(&f.Version, "version", false, "print version and exit")
	flag.Parse()

	if f.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get home directory: %v\n", err)
			os.Exit(1)
		}
		f.ConfigDir = filepath.Join(homeDir, ".config", "squeezed")
	}

	if f.SocketPath == "" {
		f.SocketPath = fmt.Sprintf("/tmp/squeezed-%d.sock", os.Getuid())
	}

	return f
}

// loadConfig reads the config file, then the environment, then the flags.
func loadConfig(flags *Flags) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	configMgr := config.NewManager(flags.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if flags.Host != "" {
		cfg.Server.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Server.Port = flags.Port
	}
	if flags.PlayerMAC != "" {
		cfg.Player.MAC = flags.PlayerMAC
	}
	if flags.OSDAddr != "" {
		cfg.OSD.Addr = flags.OSDAddr
	}
	if flags.NoOSD {
		cfg.OSD.Enabled = false
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.Verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func run(ctx context.Context, flags *Flags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	slog.SetDefault(logger)
	logger.Info("squeezed starting", slog.String("version", Version))

	if cfg.Server.Host == "" {
		server, err := discovery.Find(ctx, discovery.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("no server configured: %w", err)
		}
		cfg.Server.Host = server.Host
		cfg.Server.Port = server.Port
	}

	client := lms.NewClient(cfg.LMS(), lms.WithLogger(logger))

	runner := loop.New(client, loop.Config{
		Tick:          time.Duration(cfg.OSD.TickMs) * time.Millisecond,
		Resync:        time.Duration(cfg.OSD.ResyncSeconds) * time.Second,
		NotifyTimeout: cfg.LMS().NotifyTimeout,
	}, logger)

	var wg sync.WaitGroup

	// History
	var hist osdweb.History
	if cfg.Behavior.RecordHistory {
		store, err := history.Open(filepath.Join(cfg.DataDir, "history.db"))
		if err != nil {
			logger.Warn("History disabled", slog.Any("error", err))
		} else {
			defer store.Close()
			hist = store
			recorder := history.NewRecorder(store, client.PlayerID())
			runner.AddRenderer(loop.RendererFunc(func(snap loop.Snapshot) {
				if !snap.Connected || snap.Player.Mode != "play" {
					return
				}
				if _, err := recorder.Observe(ctx, snap.Current); err != nil {
					logger.Warn("Failed to record play", slog.Any("error", err))
				}
			}))
		}
	}

	covers := artwork.NewCache(client, coverCacheSize, logger)

	// OSD web server
	if cfg.OSD.Enabled {
		osd := osdweb.New(osdweb.Config{Addr: cfg.OSD.Addr, PageSize: cfg.OSD.PageSize},
			client, runner, covers, hist, logger)
		runner.AddRenderer(osd)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := osd.ListenAndServe(ctx); err != nil {
				logger.Error("OSD server failed", slog.Any("error", err))
			}
		}()
	}

	// Desktop media session
	if cfg.Behavior.MediaSession {
		mediaSession, err := media.NewSession()
		if err != nil {
			logger.Warn("Continuing without media session", slog.Any("error", err))
			mediaSession = media.NewNoOpSession()
		}
		defer mediaSession.Close()
		runner.AddRenderer(media.NewBridge(mediaSession, client, runner, logger))
	}

	// Control socket
	ipcServer := ipc.NewServer(flags.SocketPath, client, runner, logger)
	runner.AddRenderer(ipcServer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ipcServer.Start(ctx); err != nil {
			logger.Error("Control socket failed", slog.Any("error", err))
		}
	}()

	if cfg.Behavior.ResumeOnStart {
		var resumed atomic.Bool
		runner.AddRenderer(loop.RendererFunc(func(snap loop.Snapshot) {
			if snap.Connected && resumed.CompareAndSwap(false, true) {
				runner.Input(client.Resume)
			}
		}))
	}

	err = runner.Run(ctx)
	wg.Wait()

	if cfg.Behavior.SaveOnExit {
		saveState(client, logger)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("squeezed stopped")
	return nil
}

// saveState stores the player's playlist on the server over a short lived
// connection, the loop has closed its own by now.
func saveState(client *lms.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Open(ctx); err != nil {
		logger.Warn("Failed to save player state", slog.Any("error", err))
		return
	}
	defer client.Close()

	if err := client.Save(ctx); err != nil {
		logger.Warn("Failed to save player state", slog.Any("error", err))
		return
	}
	logger.Info("Player state saved")
}
