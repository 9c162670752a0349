package jeebie

import (
	"fmt"
	"io/ioutil"
	"log/slog"
	"sync"

	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/cpu"
	"github.com/valerio/go-jeebie/jeebie/debug"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/memory"
	"github.com/valerio/go-jeebie/jeebie/timing"
	"github.com/valerio/go-jeebie/jeebie/video"
)

// DebuggerState represents the current debugger mode
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// DMG represents the root struct and entry point for running the emulation
type DMG struct {
	cpu *cpu.CPU
	gpu *video.GPU
	mem *memory.MMU

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64

	limiter timing.Limiter
}

// advance runs one pump step of the bus for an instruction that took
// cycles T-cycles: the MMU (timer/serial/DMA) advances first and reports
// how many APU frame-sequencer edges occurred, then the APU consumes those
// alongside any CH3 retrigger pre-advance recorded mid-instruction, then
// the PPU advances last.
func (e *DMG) advance(cycles int) {
	divTicks := e.mem.Tick(cycles)
	wavePreAdvance := e.mem.ConsumeWaveAdvance()
	e.mem.APU.Tick(cycles, divTicks, wavePreAdvance)
	e.gpu.Tick(cycles)
}

func (e *DMG) init(mem *memory.MMU) {
	e.cpu = cpu.New(mem)
	e.gpu = video.NewGpu(mem)
	e.mem = mem
	e.limiter = timing.NewNoOpLimiter()

	mem.SetTimerSeed(0xABCC)
}

// New creates a new emulator instance
func New() *DMG {
	e := &DMG{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))

	return e
}

// NewWithFile creates a new emulator instance and loads the file specified into it.
func NewWithFile(path string) (*DMG, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	e := &DMG{}
	e.init(memory.NewWithCartridge(memory.NewCartridgeWithData(data)))

	return e, nil
}

// RunUntilFrame advances emulation up to the next completed frame, honoring
// the current debugger state (paused/step/step-frame/running). The error
// return exists to satisfy the Emulator interface; normal execution never
// fails.
func (e *DMG) RunUntilFrame() error {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	// Handle paused state - don't execute anything
	if state == DebuggerPaused {
		return nil
	}

	// Handle step instruction - execute one instruction then pause
	if state == DebuggerStep {
		e.debuggerMutex.Lock()
		if e.stepRequested {
			e.stepRequested = false
			e.debuggerMutex.Unlock()

			// Execute one CPU instruction
			oldPC := e.cpu.GetPC()
			cycles := e.cpu.Step()
			e.advance(cycles)
			e.instructionCount++

			// Log the executed instruction
			slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))

			// Pause after execution
			e.SetDebuggerState(DebuggerPaused)
		} else {
			e.debuggerMutex.Unlock()
		}
		return nil
	}

	// Handle step frame - execute one frame then pause
	if state == DebuggerStepFrame {
		e.debuggerMutex.Lock()
		frameRequested := e.frameRequested
		if frameRequested {
			e.frameRequested = false
		}
		e.debuggerMutex.Unlock()

		if frameRequested {
			// Execute one full frame
			total := 0
			for {
				cycles := e.cpu.Step()
				e.advance(cycles)
				e.instructionCount++
				total += cycles

				if total >= 70224 {
					break
				}
			}
			e.frameCount++
			slog.Debug("Frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
			e.SetDebuggerState(DebuggerPaused)
		}
		return nil
	}

	// Normal execution (DebuggerRunning)
	total := 0
	for {
		cycles := e.cpu.Step()
		e.advance(cycles)
		e.instructionCount++

		total += cycles

		if total >= 70224 {
			e.frameCount++
			// Log every 60 frames (once per second at 60 FPS) only when running
			if e.frameCount%60 == 0 {
				slog.Debug("Frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
			}
			e.limiter.WaitForNextFrame()
			return nil
		}
	}
}

// HandleAction maps a routed input action to the corresponding joypad or
// debugger call. Categories outside game input and emulator control (audio,
// backend-specific, debug log level) are handled by the backend itself and
// are no-ops here.
func (e *DMG) HandleAction(act action.Action, pressed bool) {
	keyFor := map[action.Action]memory.JoypadKey{
		action.GBButtonA:      memory.JoypadA,
		action.GBButtonB:      memory.JoypadB,
		action.GBButtonStart:  memory.JoypadStart,
		action.GBButtonSelect: memory.JoypadSelect,
		action.GBDPadUp:       memory.JoypadUp,
		action.GBDPadDown:     memory.JoypadDown,
		action.GBDPadLeft:     memory.JoypadLeft,
		action.GBDPadRight:    memory.JoypadRight,
	}

	if key, ok := keyFor[act]; ok {
		if pressed {
			e.HandleKeyPress(key)
		} else {
			e.HandleKeyRelease(key)
		}
		return
	}

	if !pressed {
		return
	}

	switch act {
	case action.EmulatorPauseToggle:
		if e.GetDebuggerState() == DebuggerPaused {
			e.DebuggerResume()
		} else {
			e.DebuggerPause()
		}
	case action.EmulatorStepFrame:
		e.DebuggerStepFrame()
	case action.EmulatorStepInstruction:
		e.DebuggerStepInstruction()
	}
}

// debugSnapshotSize is the number of bytes captured around PC for
// disassembly/inspection, clamped to not run past the top of the address
// space.
const debugSnapshotSize = 200

// ExtractDebugData builds a point-in-time snapshot of CPU and memory state
// for debug displays. It returns nil if the emulator has not been
// initialized yet.
func (e *DMG) ExtractDebugData() *debug.CompleteDebugData {
	if e.cpu == nil || e.gpu == nil || e.mem == nil {
		return nil
	}

	pc := e.cpu.GetPC()
	size := debugSnapshotSize
	if uint32(pc)+uint32(size) > 0xFFFF {
		size = int(0x10000 - uint32(pc))
	}

	bytes := make([]uint8, size)
	for i := 0; i < size; i++ {
		bytes[i] = e.mem.Read(pc + uint16(i))
	}

	reg := e.cpu.Snapshot()
	cpuState := &debug.CPUState{
		A: reg.A, F: reg.F, B: reg.B, C: reg.C, D: reg.D, E: reg.E, H: reg.H, L: reg.L,
		SP:     reg.SP,
		PC:     reg.PC,
		IME:    reg.IME,
		Cycles: reg.Cycles,
	}

	var dbgState debug.DebuggerState
	switch e.GetDebuggerState() {
	case DebuggerPaused:
		dbgState = debug.DebuggerPaused
	case DebuggerStep:
		dbgState = debug.DebuggerStepInstruction
	case DebuggerStepFrame:
		dbgState = debug.DebuggerStepFrame
	default:
		dbgState = debug.DebuggerRunning
	}

	currentLine := int(e.mem.Read(addr.LY))
	spriteHeight := 8
	if bit.IsSet(2, e.mem.Read(addr.LCDC)) {
		spriteHeight = 16
	}

	return &debug.CompleteDebugData{
		OAM:  debug.ExtractOAMData(e.mem, currentLine, spriteHeight),
		VRAM: debug.ExtractVRAMData(e.mem),
		CPU:  cpuState,
		Memory: &debug.MemorySnapshot{
			StartAddr: pc,
			Bytes:     bytes,
		},
		DebuggerState:   dbgState,
		InterruptEnable: e.mem.Read(addr.IE),
		InterruptFlags:  e.mem.Read(addr.IF),
		SpriteVis:       debug.ExtractSpriteData(e.mem, uint8(currentLine)),
		BackgroundVis:   debug.ExtractBackgroundData(e.mem),
		PaletteVis:      debug.ExtractPaletteData(e.mem),
		Audio:           debug.ExtractAudioData(e.mem, e.mem.APU),
	}
}

// SetFrameLimiter installs a frame pacer for RunUntilFrame's normal-running
// path. Passing nil disables pacing (used by headless/benchmark callers).
func (e *DMG) SetFrameLimiter(limiter timing.Limiter) {
	if limiter == nil {
		e.limiter = timing.NewNoOpLimiter()
	} else {
		e.limiter = limiter
	}
}

// ResetFrameTiming resets the installed frame limiter's internal clock,
// useful after a pause so the next frame doesn't appear to be running late.
func (e *DMG) ResetFrameTiming() {
	e.limiter.Reset()
}

func (e *DMG) GetCurrentFrame() *video.FrameBuffer {
	return e.gpu.GetFrameBuffer()
}

func (e *DMG) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

func (e *DMG) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

func (e *DMG) GetCPU() *cpu.CPU {
	return e.cpu
}

// Debugger control methods
func (e *DMG) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (e *DMG) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *DMG) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("Emulator paused")
}

func (e *DMG) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (e *DMG) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (e *DMG) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (e *DMG) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *DMG) GetFrameCount() uint64 {
	return e.frameCount
}

func (e *DMG) GetMMU() *memory.MMU {
	return e.mem
}
