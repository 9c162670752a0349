// Package ebiten implements the Backend interface on top of Ebitengine, a
// second GUI option alongside the SDL2 backend for hosts that prefer a
// pure-Go rendering/input loop with no cgo dependency.
package ebiten

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/valerio/go-jeebie/jeebie/backend"
	"github.com/valerio/go-jeebie/jeebie/display"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/input/event"
	"github.com/valerio/go-jeebie/jeebie/video"
)

// keyBindings maps Ebiten keys to a subset of the actions bound in
// jeebie/input/default_keys.go; here Backspace is Select and G steps one
// instruction.
var keyBindings = map[ebiten.Key]action.Action{
	ebiten.KeyZ:         action.GBButtonA,
	ebiten.KeyX:         action.GBButtonB,
	ebiten.KeyEnter:     action.GBButtonStart,
	ebiten.KeyBackspace: action.GBButtonSelect,
	ebiten.KeyUp:        action.GBDPadUp,
	ebiten.KeyDown:      action.GBDPadDown,
	ebiten.KeyLeft:      action.GBDPadLeft,
	ebiten.KeyRight:     action.GBDPadRight,
	ebiten.KeySpace:     action.EmulatorPauseToggle,
	ebiten.KeyF:         action.EmulatorStepFrame,
	ebiten.KeyG:         action.EmulatorStepInstruction,
	ebiten.KeyEscape:    action.EmulatorQuit,
}

// Backend implements backend.Backend by running Ebitengine's own game loop
// on a dedicated goroutine; Update/Draw (called by ebiten) and the
// Backend.Update method (called by the emulator's pump loop) communicate
// through a mutex-guarded frame and a buffered event queue, since the two
// loops run independently.
type Backend struct {
	config backend.BackendConfig

	mu        sync.Mutex
	frame     *video.FrameBuffer
	img       *ebiten.Image
	quit      bool
	runErr    error
	eventQ    []backend.InputEvent
	runExited chan struct{}
}

// New creates a new Ebitengine backend.
func New() *Backend {
	return &Backend{
		runExited: make(chan struct{}),
	}
}

// Init configures and launches the Ebitengine window. ebiten.RunGame blocks
// for the life of the window, so it runs on its own goroutine; Backend.Update
// and Cleanup observe state set from that goroutine under mu.
func (b *Backend) Init(config backend.BackendConfig) error {
	b.config = config
	b.img = ebiten.NewImage(video.FramebufferWidth, video.FramebufferHeight)

	title := config.Title
	if title == "" {
		title = "jeebie"
	}
	scale := config.Scale
	if scale <= 0 {
		scale = display.DefaultPixelScale
	}

	ebiten.SetWindowSize(video.FramebufferWidth*scale, video.FramebufferHeight*scale)
	ebiten.SetWindowTitle(title)
	ebiten.SetTPS(60)
	ebiten.SetWindowClosingHandled(true)

	go func() {
		defer close(b.runExited)
		if err := ebiten.RunGame(b); err != nil {
			b.mu.Lock()
			b.runErr = err
			b.mu.Unlock()
		}
	}()

	slog.Info("Ebiten backend initialized", "scale", scale)
	return nil
}

// Update implements backend.Backend: it hands the latest frame to the
// Ebitengine draw loop and drains input events collected since the last call.
func (b *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runErr != nil {
		return nil, fmt.Errorf("ebiten backend: %w", b.runErr)
	}

	b.frame = frame

	events := b.eventQ
	b.eventQ = nil

	if b.quit {
		events = append(events, backend.InputEvent{Action: action.EmulatorQuit, Type: event.Press})
	}

	return events, nil
}

// Cleanup requests that the Ebitengine window close and waits for its
// goroutine to exit.
func (b *Backend) Cleanup() error {
	b.mu.Lock()
	b.quit = true
	b.mu.Unlock()

	<-b.runExited
	return nil
}

// Update is Ebitengine's per-tick callback (ebiten.Game), distinct from
// Backend.Update above; it polls the keyboard and queues translated actions.
func (b *Backend) Update() error {
	for key, act := range keyBindings {
		if inpututil.IsKeyJustPressed(key) {
			b.queueEvent(act, event.Press)
		}
		if inpututil.IsKeyJustReleased(key) {
			b.queueEvent(act, event.Release)
		}
	}

	if ebiten.IsWindowBeingClosed() {
		b.mu.Lock()
		b.quit = true
		b.mu.Unlock()
	}

	b.mu.Lock()
	quit := b.quit
	b.mu.Unlock()
	if quit {
		return ebiten.Termination
	}

	return nil
}

func (b *Backend) queueEvent(act action.Action, t event.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventQ = append(b.eventQ, backend.InputEvent{Action: act, Type: t})
}

// Draw renders the most recently handed-off frame into the Ebitengine window.
func (b *Backend) Draw(screen *ebiten.Image) {
	b.mu.Lock()
	frame := b.frame
	b.mu.Unlock()

	if frame == nil {
		return
	}

	b.img.WritePixels(frame.ToBinaryData())

	opts := &ebiten.DrawImageOptions{}
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	opts.GeoM.Scale(float64(sw)/video.FramebufferWidth, float64(sh)/video.FramebufferHeight)
	screen.DrawImage(b.img, opts)
}

// Layout reports the fixed internal resolution; Ebitengine scales it to the
// actual window size set in Init.
func (b *Backend) Layout(outsideWidth, outsideHeight int) (int, int) {
	return video.FramebufferWidth, video.FramebufferHeight
}

var _ backend.Backend = (*Backend)(nil)
var _ ebiten.Game = (*Backend)(nil)
