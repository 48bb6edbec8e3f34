package ui

import (
	"image"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Placeholder texts of the display panels.
const (
	PlaceholderRGB   = "RGB Frame"
	PlaceholderDepth = "Depth Frame"
	PlaceholderIR    = "IR Frame"
	PlaceholderIMU   = "IMU"
	PlaceholderAudio = "Audio"
)

var (
	panelBackground  = color.RGBA{25, 25, 25, 255}
	placeholderColor = color.RGBA{180, 180, 180, 255}
)

// Panel displays the latest frame of one stream, or placeholder text when
// there is none.
type Panel struct {
	widget.BaseWidget
	image       *canvas.Image
	bg          *canvas.Rectangle
	placeholder *canvas.Text

	mu      sync.Mutex
	current image.Image
}

// NewPanel creates a panel showing text until the first frame arrives.
func NewPanel(text string) *Panel {
	p := &Panel{
		image:       canvas.NewImageFromImage(nil),
		bg:          canvas.NewRectangle(panelBackground),
		placeholder: canvas.NewText(text, placeholderColor),
	}
	p.image.FillMode = canvas.ImageFillContain
	p.image.Hidden = true
	p.placeholder.TextSize = 18
	p.placeholder.Alignment = fyne.TextAlignCenter

	p.ExtendBaseWidget(p)
	return p
}

func (p *Panel) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewStack(p.bg, p.image, container.NewCenter(p.placeholder))
	return widget.NewSimpleRenderer(c)
}

// SetImage replaces the displayed frame.
func (p *Panel) SetImage(img image.Image) {
	p.mu.Lock()
	p.current = img
	p.mu.Unlock()

	p.image.Image = img
	p.image.Hidden = img == nil
	p.placeholder.Hidden = img != nil
	p.image.Refresh()
	p.placeholder.Refresh()
}

// Reset drops the frame and shows the placeholder again.
func (p *Panel) Reset() {
	p.SetImage(nil)
}

// Image returns the displayed frame, or nil.
func (p *Panel) Image() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Text returns the placeholder text.
func (p *Panel) Text() string {
	return p.placeholder.Text
}

// ShowsPlaceholder reports whether the placeholder text is visible.
func (p *Panel) ShowsPlaceholder() bool {
	return !p.placeholder.Hidden
}
