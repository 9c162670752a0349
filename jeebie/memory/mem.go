package memory

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/audio"
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	regionMap [256]memRegion

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	serial SerialPort
	timer  Timer

	dma         dmaState
	lastBusByte byte // data-bus latch: last byte a CPU access actually put on the bus

	ppu PPUAccess

	// waveTriggerAdvance accumulates the cpu_offset of any NR34 trigger
	// write seen since the last ConsumeWaveAdvance, for the pump loop to
	// forward into APU.Tick's wave_pre_advance parameter.
	waveTriggerAdvance int
}

// ConsumeWaveAdvance returns and clears the pending CH3 retrigger
// pre-advance accumulated by WriteAt since the last call.
func (m *MMU) ConsumeWaveAdvance() int {
	v := m.waveTriggerAdvance
	m.waveTriggerAdvance = 0
	return v
}

// PPUAccess is the narrow offset-parameterized query surface the BUS needs
// from the PPU to gate CPU access to VRAM/OAM and to apply the STAT-write
// quirk, without importing the video package (which already imports memory).
type PPUAccess interface {
	VRAMAccessibleAt(offset int) bool
	OAMAccessibleAt(offset int) bool
	NotifyStatWrite()
}

// SetPPU wires the PPU's offset-parameterized access queries into the bus.
// Called once by video.NewGpu, after the PPU has a reference to this MMU.
func (m *MMU) SetPPU(p PPUAccess) {
	m.ppu = p
}

// dmaState tracks an in-flight OAM DMA transfer. Writing 0xFF46 schedules a
// transfer that takes effect only after an 8 T-cycle setup delay. When the
// delay elapses all 160 bytes are copied at once (the copy is not spread at
// 4 T-cycles/byte); the transfer window then lasts 640 T-cycles, and for the
// whole window CPU accesses outside HRAM are rerouted through the data-bus
// latch rather than reaching real memory.
type dmaState struct {
	active            bool
	delayRemaining    int
	transferRemaining int
	source            uint16
}

// OAMCorruptionPattern selects which of the three DMG OAM-corruption glitch
// shapes applies, based on how the triggering instruction touches memory.
const (
	OAMCorruptRead = iota
	OAMCorruptWrite
	OAMCorruptReadIncDec
)

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	return mmu
}

// Tick advances any i/o that needs it, if any. It returns the number of
// APU frame-sequencer edges (see Timer.Tick) so the caller can forward
// them to APU.Tick.
func (m *MMU) Tick(cycles int) int {
	divTicks := m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	m.advanceDMA(cycles)
	return divTicks
}

// advanceDMA moves an in-flight OAM DMA transfer forward by cycles
// T-cycles: first draining the 8-cycle setup delay, then performing the
// 160-byte copy the instant the delay elapses, then counting down the
// 640-cycle transfer window during which the data bus stays latched.
func (m *MMU) advanceDMA(cycles int) {
	if !m.dma.active {
		return
	}

	remaining := cycles
	if m.dma.delayRemaining > 0 {
		if remaining < m.dma.delayRemaining {
			m.dma.delayRemaining -= remaining
			return
		}
		remaining -= m.dma.delayRemaining
		m.dma.delayRemaining = 0
		m.performDMACopy()
	}

	if remaining >= m.dma.transferRemaining {
		m.dma.transferRemaining = 0
		m.dma.active = false
		return
	}
	m.dma.transferRemaining -= remaining
}

// performDMACopy does the actual 160-byte OAM transfer, remapping echo/WRAM
// mirror sources (0xE000-0xFFFF) down to 0xC000-0xDFFF as real hardware does.
func (m *MMU) performDMACopy() {
	src := m.dma.source
	for i := uint16(0); i < 160; i++ {
		s := src + i
		if s >= 0xE000 {
			s = 0xC000 + (s - 0xE000)
		}
		m.memory[0xFE00+i] = m.Read(s)
	}
}

// dmaBlocksAt reports whether, offset T-cycles past the last Tick boundary,
// an in-flight DMA transfer would still be occupying the bus.
func (m *MMU) dmaBlocksAt(offset int) bool {
	if !m.dma.active {
		return false
	}
	return offset < m.dma.delayRemaining+m.dma.transferRemaining
}

// ReadAt is the cpu_offset-aware read used by CPU-originated accesses: while
// a DMA transfer occupies the bus, any access outside HRAM observes the
// latched data-bus byte instead of real memory.
func (m *MMU) ReadAt(address uint16, offset int) byte {
	if m.dmaBlocksAt(offset) && address < 0xFF80 {
		return m.lastBusByte
	}
	if m.ppu != nil {
		region := m.regionMap[address>>8]
		if region == regionVRAM && !m.ppu.VRAMAccessibleAt(offset) {
			return 0xFF
		}
		if region == regionOAM && address <= 0xFE9F && !m.ppu.OAMAccessibleAt(offset) {
			return 0xFF
		}
	}
	v := m.Read(address)
	m.lastBusByte = v
	return v
}

// WriteAt is the cpu_offset-aware write used by CPU-originated accesses:
// while a DMA transfer occupies the bus, writes outside HRAM only update the
// data-bus latch and never reach real memory.
func (m *MMU) WriteAt(address uint16, value byte, offset int) {
	if m.dmaBlocksAt(offset) && address < 0xFF80 {
		m.lastBusByte = value
		return
	}
	m.lastBusByte = value
	if m.ppu != nil {
		region := m.regionMap[address>>8]
		if region == regionVRAM && !m.ppu.VRAMAccessibleAt(offset) {
			return
		}
		if region == regionOAM && address <= 0xFE9F && !m.ppu.OAMAccessibleAt(offset) {
			return
		}
	}
	if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
		m.timer.QueueWrite(address, value, offset)
		return
	}
	if address == addr.STAT && m.ppu != nil {
		m.ppu.NotifyStatWrite()
	}
	if address == addr.NR34 {
		m.waveTriggerAdvance += offset
		m.APU.WriteRegisterAt(address, value, offset)
		return
	}
	m.Write(address, value)
}

// CorruptOAM applies the DMG OAM-corruption glitch: a 16-bit register
// INC/DEC (or an HL-postfix read/write) that leaves the register holding an
// OAM address scrambles the row before it. Row 0 (0xFE00-0xFE07) is immune,
// since the glitch reads/writes the *preceding* row.
func (m *MMU) CorruptOAM(pointedAddr uint16, pattern int) {
	if pointedAddr < 0xFE00 || pointedAddr > 0xFEFF {
		return
	}
	row := int(pointedAddr-0xFE00) / 8
	if row <= 0 || row > 19 {
		return
	}
	base := 0xFE00 + row*8
	prev := base - 8

	switch pattern {
	case OAMCorruptWrite:
		for i := 0; i < 8; i++ {
			m.memory[base+i] = m.memory[prev+i]
		}
	case OAMCorruptReadIncDec:
		a := m.oamWord(base)
		b := m.oamWord(prev)
		c := m.oamWord(base + 4)
		m.setOAMWord(base, ((a^c)&(b^c))^c)
		for i := 2; i < 8; i++ {
			m.memory[base+i] = m.memory[prev+i]
		}
	default: // OAMCorruptRead
		a := m.oamWord(base)
		b := m.oamWord(prev)
		m.setOAMWord(base, b|(a&b))
	}
}

func (m *MMU) oamWord(addr int) uint16 {
	return uint16(m.memory[addr]) | uint16(m.memory[addr+1])<<8
}

func (m *MMU) setOAMWord(addr int, v uint16) {
	m.memory[addr] = byte(v)
	m.memory[addr+1] = byte(v >> 8)
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount) // FIXME: add support for multicart
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.ramBankCount, cart.hasRTC, nil)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		panic("unsupported MBC type: unknown")
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM, regionWRAM:
		return m.memory[address]
	case regionEcho:
		if address <= 0xFDFF {
			return m.memory[address-0x2000]
		}
		return m.memory[address-0x2000]
	case regionOAM:
		if address <= 0xFE9F {
			return m.memory[address]
		}
		// Unused area 0xFEA0-0xFEFF
		return m.memory[address]
	case regionIO:
		if address == addr.SB || address == addr.SC {
			return m.serial.Read(address)
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			return m.timer.Read(address)
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			return m.APU.ReadRegister(address)
		}
		// Just in case, we always read the upper 3 bits of IF as 1.
		// They're not used, but have caused me some headaches when checking for
		// when the halt bug triggers (IF != 0).
		if address == addr.IF {
			return m.memory[address] | 0xE0
		}
		if address >= 0xFF80 {
			// HRAM
			return m.memory[address]
		}
		// Other IO registers
		return m.memory[address]
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.memory[address] = value
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.memory[address] = value
	case regionEcho:
		if address <= 0xFDFF {
			m.memory[address-0x2000] = value
		}
	case regionOAM:
		if address <= 0xFE9F {
			m.memory[address] = value
		} else {
			// Unused area 0xFEA0-0xFEFF
			m.memory[address] = value
		}
	case regionIO:
		if address == addr.P1 {
			m.writeJoypad(value)
			return
		}
		if address == addr.SB || address == addr.SC {
			m.serial.Write(address, value)
			return
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			m.timer.Write(address, value)
			return
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			m.APU.WriteRegister(address, value)
			return
		}
		if address == addr.IF {
			// This goddamn register has its upper 3 bits always set as 1...
			// Beware if you're trying to match halt bug behavior.
			m.memory[address] = value | 0xE0
			return
		}
		if address == addr.DMA {
			// Scheduling a new transfer while one is active replaces it
			// outright: the old transfer's remaining window is discarded
			// and the new one starts its own 8-cycle delay from here.
			m.dma = dmaState{
				active:            true,
				delayRemaining:    8,
				transferRemaining: 640,
				source:            uint16(value) << 8,
			}
			m.memory[address] = value
			return
		}
		if address >= 0xFF80 {
			// HRAM
			m.memory[address] = value
			return
		}
		// Other IO registers
		m.memory[address] = value
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to.
//
// The mapping:
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Start, Select
//   - if both are clear, hw does an AND of both button sets
//   - if both are set, return 0x0F (high impedence state)
//
// This function is called whenever:
//   - there is a write to the P1 register (only set bits 4-5)
//   - a button is pressed or released (tracked separately)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	// A button group is selected if the corresponding bit is 0
	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		// no selection
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	// Only bits 4-5 are writable (selection bits)
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
