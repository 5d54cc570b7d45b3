// main.go
package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/volmix/internal/app"
	"github.com/petervdpas/volmix/internal/backend/fake"
	"github.com/petervdpas/volmix/internal/config"
	"github.com/petervdpas/volmix/internal/logs"
	"github.com/petervdpas/volmix/internal/mixer"
	"github.com/petervdpas/volmix/internal/tui"
	"github.com/petervdpas/volmix/internal/util"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

var log = logging.Logger("volmix")

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	cfgFlag  = flag.String("config", "volmix.json", "Config file (relative names resolve in the user config dir)")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	// Show version
	if *version {
		fmt.Printf("volmix v%s\n", appVersion)
		return
	}

	// Show help
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()

	// No arguments - run the overlay
	if len(args) == 0 {
		runDesktopApp(mixer.ModeOverlay)
		return
	}

	// Parse command
	command := args[0]

	switch command {
	case "overlay":
		runDesktopApp(mixer.ModeOverlay)

	case "mixer":
		runDesktopApp(mixer.ModePanel)

	case "tui":
		runTUI()

	case "devbackend":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: devbackend command requires a listen address")
			fmt.Fprintln(os.Stderr, "Usage: volmix devbackend <addr>")
			os.Exit(1)
		}
		runDevBackend(args[1])

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

// loadConfig resolves the config path, creating a default file on first run.
func loadConfig() (string, config.Config) {
	cfgPath := util.ConfigPath(*cfgFlag)
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	if created {
		fmt.Fprintf(os.Stderr, "Created default config: %s\n", cfgPath)
	}
	return cfgPath, cfg
}

func setupLogs(cfg config.Config, stderr bool) *logs.Tee {
	tee, err := logs.Setup(logs.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Lines:  cfg.Log.Buffer,
		Stderr: stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	return tee
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runDesktopApp(mode mixer.Mode) {
	cfgPath, cfg := loadConfig()
	tee := setupLogs(cfg, true)
	defer tee.Close()

	a := NewApp(mode, cfgPath, cfg, tee.Buffer)

	title, width, height := "volmix", cfg.Overlay.Width, cfg.Overlay.Height
	if mode == mixer.ModePanel {
		title, width, height = "Volume Mixer", 300, 340
	}

	err := wails.Run(&options.App{
		Title:             title,
		Width:             width,
		Height:            height,
		Frameless:         true,
		AlwaysOnTop:       true,
		StartHidden:       true,
		HideWindowOnClose: true,
		DisableResize:     true,
		BackgroundColour:  &options.RGBA{R: 0, G: 0, B: 0, A: 0},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		OnStartup:  a.startup,
		OnShutdown: a.shutdown,
		Bind:       []any{a},
	})
	if err != nil {
		log.Fatal(err)
	}
}

func runTUI() {
	cfgPath, cfg := loadConfig()
	tee := setupLogs(cfg, false)
	defer tee.Close()

	ctx, cancel := signalContext()
	defer cancel()

	updates := tui.NewUpdates()
	rt, err := app.Start(ctx, app.Options{
		CfgPath:  cfgPath,
		Cfg:      cfg,
		Mode:     mixer.ModePanel,
		Renderer: updates,
		Logs:     tee.Buffer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	p := tea.NewProgram(tui.NewModel(rt.Controller, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func runDevBackend(addr string) {
	_, cfg := loadConfig()
	tee := setupLogs(cfg, true)
	defer tee.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fb := fake.Demo()
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/ws", fb)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("DEVBACKEND: serving fake audio backend on ws://%s/ws", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("DEVBACKEND: %v", err)
	}
}

func showUsage() {
	fmt.Println("volmix - volume overlay and mixer panel")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  volmix [flags] [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  overlay            Run the volume overlay window (default)")
	fmt.Println("  mixer              Run the mixer panel window")
	fmt.Println("  tui                Run the mixer panel in the terminal")
	fmt.Println("  devbackend <addr>  Serve an in-memory audio backend, e.g. 127.0.0.1:7320")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config <file>  Config file (default volmix.json in the user config dir)")
	fmt.Println("  -h              Show this help message")
	fmt.Println("  -version        Show version information")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  VOLMIX_BACKEND_URL, VOLMIX_LOG_LEVEL, VOLMIX_LOG_FORMAT, VOLMIX_DEBUG_ADDR")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Try the panel against the fake backend")
	fmt.Println("  volmix devbackend 127.0.0.1:7320 &")
	fmt.Println("  volmix tui")
}
