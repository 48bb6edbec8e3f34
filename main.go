package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"depth-recorder-go/internal/config"
	"depth-recorder-go/internal/device"
	"depth-recorder-go/internal/ui"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

// Version information - set by linker flags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "depth-recorder",
		Short: "Preview and record a depth camera",
		Long: `Depth Recorder opens a depth camera, previews its RGB, depth and IR
streams and records the color stream to Matroska files.`,
		SilenceUsage: true,
		RunE:         runGUI,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to config.ini (default: ./config.ini or $DEPTH_RECORDER_CONFIG)")

	root.AddCommand(probeCommand(), selfTestCommand(), versionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtimeEnv is what every command needs: configuration, logging and the
// camera backend.
type runtimeEnv struct {
	cfg     *config.Config
	factory logging.LoggerFactory
	log     logging.LeveledLogger
	sdk     device.SDK
	cleanup func()
}

func setup() (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("WARNING: config load error: %v (using defaults)", err)
		cfg = config.DefaultConfig()
	}

	factory, cleanup, err := config.ConfigureLogging(cfg)
	if err != nil {
		log.Printf("WARNING: logging setup error: %v", err)
	}
	mainLog := factory.NewLogger("main")

	ok, warnings := cfg.Validate()
	if !ok {
		mainLog.Warn("config validation failed")
	}
	for _, w := range warnings {
		mainLog.Warnf("%s", w)
	}

	sdk, err := device.New(cfg, factory)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("device backend: %w", err)
	}
	mainLog.Infof("Depth Recorder %s, backend %s, video dir %s", Version, sdk.Name(), cfg.VideoDir)

	return &runtimeEnv{cfg: cfg, factory: factory, log: mainLog, sdk: sdk, cleanup: cleanup}, nil
}

func runGUI(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.cleanup()

	app := ui.NewApp(env.cfg, env.sdk, env.factory)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		env.log.Infof("received signal %v, cleaning up", sig)
		app.Cleanup()
	}()

	app.Start()
	env.log.Info("exited")
	return nil
}
