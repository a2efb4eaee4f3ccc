package main

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lensguard/agent/internal/capture"
	"github.com/lensguard/agent/internal/classifier"
	"github.com/lensguard/agent/internal/config"
	"github.com/lensguard/agent/internal/control"
	"github.com/lensguard/agent/internal/cropcoord"
	"github.com/lensguard/agent/internal/framesink"
	"github.com/lensguard/agent/internal/hotkeys"
	"github.com/lensguard/agent/internal/locationmsg"
	"github.com/lensguard/agent/internal/logging"
	"github.com/lensguard/agent/internal/overlay"
	"github.com/lensguard/agent/internal/resultclient"
	"github.com/lensguard/agent/internal/sensor"
	"github.com/lensguard/agent/internal/session"
	"github.com/lensguard/agent/internal/uploader"
	"github.com/lensguard/agent/internal/verdict"
	"github.com/lensguard/agent/internal/workerpool"
)

//go:embed all:frontend-overlay/dist
var overlayAssets embed.FS

//go:embed all:frontend-control/dist
var controlAssets embed.FS

//go:embed assets/tray.png
var trayIcon []byte

var version = "0.1.0"
var cfgFile string

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "lensguard-agent",
	Short: "LensGuard desktop agent",
	Long:  `LensGuard Agent - on-device AI-generated-content detection overlay for browser posts`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Run: func(cmd *cobra.Command, args []string) {
		runAgent()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("LensGuard Agent v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config directory)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging wires structured logging from config, same shape as the
// teacher's initLogging: stdout plus an optional rotated log file tee.
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

// wsBaseURL derives the classifier's websocket base URL from its HTTP base
// URL by swapping scheme, mirroring the deleted teacher client's
// https->wss/http->ws scheme switch.
func wsBaseURL(httpBaseURL string) string {
	switch {
	case strings.HasPrefix(httpBaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpBaseURL, "https://")
	case strings.HasPrefix(httpBaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpBaseURL, "http://")
	default:
		return httpBaseURL
	}
}

// sensorBridge adapts the sensor intake server's per-message callback into
// crop-coordinator events fed to the session manager.
type sensorBridge struct {
	manager *session.Manager
}

func (b *sensorBridge) HandleMessage(msg locationmsg.Message) {
	b.manager.HandleEvent(cropcoord.Translate(msg))
}

func (b *sensorBridge) HandleDisconnect() {
	b.manager.HandleEvent(cropcoord.Event{Active: false})
}

// agentComponents holds the running components so shutdown can stop them
// in a bounded, deliberate order, matching the teacher's
// runAgent/shutdownAgent split.
type agentComponents struct {
	sensorServer *sensor.Server
	uploader     *uploader.Uploader
	manager      *session.Manager
	hotkeysH     *hotkeys.Handler
	overlayApp   *overlay.App
	controlApp   *control.App
}

func shutdownAgent(comps *agentComponents) {
	if comps == nil {
		return
	}

	if comps.sensorServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := comps.sensorServer.Stop(shutdownCtx); err != nil {
			log.Warn("sensor server shutdown error", "error", err)
		}
		shutdownCancel()
	}
	if comps.uploader != nil {
		comps.uploader.Stop()
	}
	if comps.manager != nil {
		comps.manager.Shutdown()
	}
	if comps.hotkeysH != nil {
		comps.hotkeysH.Close()
	}
}

func runAgent() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	config.SetLogFunc(func(msg string, args ...any) { log.Warn(msg, args...) })

	log.Info("starting agent", "version", version, "sensorAddr", fmt.Sprintf("%s:%d", cfg.SensorHost, cfg.SensorPort))

	cache := verdict.NewCache(time.Duration(cfg.VerdictCacheTTLSeconds) * time.Second)
	resultClient := resultclient.New(wsBaseURL(cfg.ClassifierBaseURL))
	classifierClient := classifier.New(cfg.ClassifierBaseURL)

	frameSink, err := framesink.New(cfg.FramesDir)
	if err != nil {
		log.Error("failed to initialize frame sink", "error", err)
		os.Exit(1)
	}

	overlayApp := overlay.NewApp(classifierClient)

	sessionCfg := session.Config{
		SettleDelay:       time.Duration(cfg.SettleDelayMS) * time.Millisecond,
		CaptureInterval:   time.Duration(cfg.CaptureIntervalMS) * time.Millisecond,
		DetectionThrottle: time.Duration(cfg.DetectionThrottleMS) * time.Millisecond,
		Quality:           cfg.CaptureQuality,
	}

	capturerFn := func() (capture.ScreenCapturer, error) {
		return capture.New(capture.DefaultConfig())
	}

	manager := session.NewManager(sessionCfg, capturerFn, cache, resultClient, overlayApp, frameSink)

	controlApp := control.NewApp(manager, classifierClient, cfg.FramesDir, time.Duration(cfg.VerdictPollIntervalSeconds)*time.Second)
	manager.SetOnBaseIDSeen(controlApp.Track)

	pool := workerpool.New(4, 32)

	upl := uploader.New(uploader.Config{
		FramesDir:      cfg.FramesDir,
		ClassifierURL:  cfg.ClassifierBaseURL,
		BatchSize:      cfg.UploadBatchSize,
		DebounceWindow: time.Duration(cfg.UploadDebounceMS) * time.Millisecond,
	}, pool)
	if err := upl.Start(); err != nil {
		log.Error("failed to start uploader", "error", err)
		os.Exit(1)
	}

	bridge := &sensorBridge{manager: manager}
	sensorAddr := fmt.Sprintf("%s:%d", cfg.SensorHost, cfg.SensorPort)
	sensorServer := sensor.New(sensorAddr, bridge)
	sensorServer.Start()

	var hotkeysHandler *hotkeys.Handler
	if cfg.HotkeysEnabled {
		debugCapturer, err := capture.New(capture.DefaultConfig())
		if err != nil {
			log.Warn("debug screenshot capturer unavailable, hotkeys screenshot disabled", "error", err)
		} else {
			hotkeysHandler, err = hotkeys.New(overlayApp, debugCapturer, cfg.DebugDir, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
			if err != nil {
				log.Warn("failed to initialize debug hotkeys", "error", err)
			}
		}
	}

	comps := &agentComponents{
		sensorServer: sensorServer,
		uploader:     upl,
		manager:      manager,
		hotkeysH:     hotkeysHandler,
		overlayApp:   overlayApp,
		controlApp:   controlApp,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down agent")
		controlApp.Quit()
		overlayApp.Quit()
	}()

	// The control window and tray icon run on their own goroutines; the
	// overlay window owns the main goroutine, matching a single wails.Run
	// per OS-level window thread.
	go func() {
		if err := controlApp.Run(controlAssets); err != nil {
			log.Error("control window exited with error", "error", err)
		}
	}()
	go controlApp.RunTray(trayIcon)

	var overlayExtraBind []interface{}
	if hotkeysHandler != nil {
		overlayExtraBind = append(overlayExtraBind, hotkeysHandler)
	}
	if err := overlayApp.Run(overlayAssets, overlayExtraBind...); err != nil {
		log.Error("overlay window exited with error", "error", err)
	}

	shutdownAgent(comps)
	log.Info("agent stopped")
}
