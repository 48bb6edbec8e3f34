// Package ui is the fyne front end: the three control buttons, the option
// sidebar and the RGB / Depth / IR display panels.
package ui

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"depth-recorder-go/internal/capture"
	"depth-recorder-go/internal/config"
	"depth-recorder-go/internal/control"
	"depth-recorder-go/internal/device"
	"depth-recorder-go/internal/perf"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/pion/logging"
)

// ConnectionProblemMessage is shown when the pre-flight probe fails.
const ConnectionProblemMessage = "Camera connection problem, please retry the connection"

// App is the main control surface window.
type App struct {
	fyneApp fyne.App
	window  fyne.Window
	cfg     *config.Config
	log     logging.LeveledLogger

	worker   *capture.Worker
	ctrl     *control.Controller
	adaptive *perf.AdaptiveController
	sidebar  *Sidebar

	rgb, depth, ir *Panel
	imu, audio     *Panel

	deviceBtn *widget.Button
	streamBtn *widget.Button
	recordBtn *widget.Button

	stopCh      chan struct{}
	cleanupOnce sync.Once

	// notify shows a blocking message and runs onClosed once it is
	// dismissed; exit ends the process.
	notify func(title, message string, onClosed func())
	exit   func(code int)
}

// NewApp creates the application window around sdk.
func NewApp(cfg *config.Config, sdk device.SDK, factory logging.LoggerFactory) *App {
	return newApp(app.New(), cfg, sdk, factory)
}

func newApp(fyneApp fyne.App, cfg *config.Config, sdk device.SDK, factory logging.LoggerFactory) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	a := &App{
		fyneApp: fyneApp,
		window:  fyneApp.NewWindow("Depth Recorder"),
		cfg:     cfg,
		log:     factory.NewLogger("ui"),
		rgb:     NewPanel(PlaceholderRGB),
		depth:   NewPanel(PlaceholderDepth),
		ir:      NewPanel(PlaceholderIR),
		imu:     NewPanel(PlaceholderIMU),
		audio:   NewPanel(PlaceholderAudio),
		sidebar: NewSidebar(cfg.SidebarKeys(), cfg.SidebarSelection()),
		stopCh:  make(chan struct{}),
		exit:    os.Exit,
	}
	a.notify = a.showModal

	a.worker = capture.NewWorker(capture.NewBuffers(), capture.Options{
		PreviewWidth: cfg.PreviewWidth,
		MinFPS:       cfg.MinDynamicFPS,
	}, factory.NewLogger("capture"))

	a.ctrl = control.NewController(sdk, a.worker, a, control.Options{
		Selection:    a.sidebar.Selection,
		VideoDir:     cfg.VideoDir,
		Debug:        cfg.Debug,
		ProbeTimeout: time.Duration(cfg.ProbeTimeoutMS) * time.Millisecond,
		StopTimeout:  time.Duration(cfg.StopTimeoutMS) * time.Millisecond,
	}, factory.NewLogger("control"))

	if cfg.DynamicFPSEnabled {
		a.adaptive = perf.NewAdaptiveController(a.worker, perf.NewMonitor(),
			time.Duration(cfg.PerfCheckIntervalMS)*time.Millisecond, factory.NewLogger("perf"))
	}

	a.window.Resize(fyne.NewSize(1280, 800))
	a.setupUI()
	return a
}

// Start shows the window and blocks until the application quits.
func (a *App) Start() {
	a.window.Show()
	go a.refreshLoop()
	go a.healthLoop()
	if a.adaptive != nil {
		a.adaptive.Start()
	}
	a.fyneApp.Run()
}

func (a *App) setupUI() {
	a.deviceBtn = widget.NewButton(control.LabelDeviceOpen, a.onDevice)
	a.streamBtn = widget.NewButton(control.LabelStream, a.onStream)
	a.recordBtn = widget.NewButton(control.LabelRecord, a.onRecord)
	a.syncControls()

	buttons := container.NewHBox(a.deviceBtn, a.streamBtn, a.recordBtn)
	panels := []fyne.CanvasObject{a.rgb, a.depth, a.ir, a.imu, a.audio}
	grid := container.New(newFillGridLayout(len(panels)), panels...)

	background := canvas.NewRectangle(color.RGBA{20, 20, 20, 255})
	side := container.NewVScroll(a.sidebar.Object())
	side.SetMinSize(fyne.NewSize(280, 0))

	content := container.NewBorder(buttons, nil, side, nil, container.NewStack(background, grid))
	a.window.SetContent(content)
	a.window.SetCloseIntercept(a.cleanup)
}

func (a *App) onDevice() {
	err := a.ctrl.ToggleDevice(context.Background())
	a.syncControls()
	if err == nil {
		return
	}

	var ue *device.UnavailableError
	if errors.As(err, &ue) {
		a.log.Errorf("%s: %v", ConnectionProblemMessage, err)
		a.notify("Camera", ConnectionProblemMessage, func() {
			a.cleanup()
			a.exit(0)
		})
		return
	}
	a.showError(err)
}

func (a *App) onStream() {
	a.toggle(a.ctrl.ToggleStreaming)
}

func (a *App) onRecord() {
	a.toggle(a.ctrl.ToggleRecording)
}

func (a *App) toggle(fn func(context.Context) error) {
	err := fn(context.Background())
	a.syncControls()
	if err != nil {
		a.showError(err)
	}
}

// syncControls applies the controller's labels and enablement to the
// buttons.
func (a *App) syncControls() {
	ctl := a.ctrl.Controls()
	a.deviceBtn.SetText(ctl.DeviceLabel)
	a.streamBtn.SetText(ctl.StreamLabel)
	a.recordBtn.SetText(ctl.RecordLabel)
	setEnabled(a.streamBtn, ctl.StreamEnabled)
	setEnabled(a.recordBtn, ctl.RecordEnabled)
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

func (a *App) showModal(title, message string, onClosed func()) {
	d := dialog.NewInformation(title, message, a.window)
	d.SetOnClosed(onClosed)
	d.Show()
}

func (a *App) showError(err error) {
	a.log.Warnf("%v", err)
	if errors.Is(err, capture.ErrStopTimeout) {
		return
	}
	msg := device.Reason(err)
	if errors.Is(err, control.ErrInvalidTransition) {
		msg = "Stop the current acquisition first"
	}
	a.notify("Camera", msg, func() {})
}

// SetRGBImage implements control.Sink.
func (a *App) SetRGBImage(img image.Image) { a.rgb.SetImage(img) }

// SetDepthImage implements control.Sink.
func (a *App) SetDepthImage(img image.Image) { a.depth.SetImage(img) }

// SetIRImage implements control.Sink.
func (a *App) SetIRImage(img image.Image) { a.ir.SetImage(img) }

// ResetPanels implements control.Sink.
func (a *App) ResetPanels() {
	a.rgb.Reset()
	a.depth.Reset()
	a.ir.Reset()
}

// refreshLoop forwards new frames to the panels at the configured UI rate.
func (a *App) refreshLoop() {
	uiFPS := a.cfg.UIFPS
	if uiFPS <= 0 {
		uiFPS = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(uiFPS))
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.ctrl.Forward(a)
		}
	}
}

// healthLoop periodically logs per-channel frame counts. Disabled when
// the interval is not positive.
func (a *App) healthLoop() {
	interval := a.cfg.HealthLogIntervalSec
	if interval <= 0 {
		a.log.Info("health logging disabled")
		return
	}
	ticker := time.NewTicker(time.Duration(interval * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.logHealth()
		}
	}
}

func (a *App) logHealth() {
	st := a.worker.Stats()
	buffers := a.worker.Buffers()
	a.log.Infof("health: state=%s fps=%d captured=%d skipped=%d errors=%d",
		a.ctrl.State(), st.TargetFPS, st.Captured, st.Skipped, st.Errors)
	for _, ch := range capture.Channels {
		fb := buffers.Get(ch)
		fps, total, _ := fb.Stats()
		a.log.Infof("health: %s frames=%d dropped=%d avg_fps=%.1f", ch, total, fb.Dropped(), fps)
	}
}

// cleanup stops background work, closes the device and quits.
func (a *App) cleanup() {
	a.cleanupOnce.Do(func() {
		a.log.Info("shutting down")
		close(a.stopCh)
		if a.adaptive != nil {
			a.adaptive.Stop()
		}
		if err := a.ctrl.Shutdown(context.Background()); err != nil {
			a.log.Warnf("shutdown: %v", err)
		}
		a.fyneApp.Quit()
	})
}

// Cleanup closes the device and quits the application. Safe to call from
// any goroutine and more than once.
func (a *App) Cleanup() {
	a.cleanup()
}
