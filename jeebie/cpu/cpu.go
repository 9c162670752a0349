package cpu

import "github.com/valerio/go-jeebie/jeebie/addr"

// Flag is one of the 4 possible flags used in the flag register (low byte of AF).
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// Bus is the contract the CPU needs from whatever owns the address space.
// It is satisfied by *memory.MMU; kept as an interface here so the cpu
// package never imports memory's full surface (DMA, cartridge, etc).
//
// ReadAt/WriteAt carry the sub-instruction offset (0, 4, 8, ...) of the
// access within the instruction currently executing - the BUS adds it to
// its own not-yet-ticked cycle counter to know exactly when, mid-instruction,
// this access happens. Read/Write are the offset-0 shorthand used by callers
// outside instruction execution (debug snapshots, tests).
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	ReadAt(address uint16, offset int) byte
	WriteAt(address uint16, value byte, offset int)
	// CorruptOAM applies the DMG OAM-corruption glitch for a 16-bit
	// register INC/DEC that left the register holding addr, an OAM
	// address. pattern selects which of the three corruption shapes the
	// triggering instruction form uses (oamCorrupt* below).
	CorruptOAM(addr uint16, pattern int)
}

// Patterns for the OAM corruption glitch, keyed by how the triggering
// instruction touches memory: a bare 16-bit INC/DEC (read), an HL-postfix
// write like LDI/LDD (HL),A (write), or an HL-postfix read like LDI/LDD
// A,(HL) (readIncDec).
const (
	oamCorruptRead = iota
	oamCorruptWrite
	oamCorruptReadIncDec
)

// CPU holds the full register/interrupt state of a Sharp LR35902 and executes
// one instruction or interrupt dispatch at a time via Step.
type CPU struct {
	bus Bus

	a, b, c, d, e, f, h, l uint8
	sp, pc                 uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool

	halted  bool
	haltBug bool
	stopped bool
	// stopWakeDelay counts down the T-cycles the CPU spends fetching NOPs
	// after STOP exits via a joypad line going low.
	stopWakeDelay int

	cycles uint64

	// memOffset is the cpu_offset sub-instruction timing counter: how many
	// T-cycles into the instruction (or interrupt dispatch) currently
	// executing this next bus access falls at. Reset to 0 at the start of
	// execOne/handleInterrupts and bumped by 4 after every access.
	memOffset int
}

// busRead performs a CPU-originated read at the current sub-instruction
// offset, then advances the offset for the next access this instruction makes.
func (c *CPU) busRead(address uint16) byte {
	v := c.bus.ReadAt(address, c.memOffset)
	c.memOffset += 4
	return v
}

// busWrite performs a CPU-originated write at the current sub-instruction
// offset, then advances the offset for the next access this instruction makes.
func (c *CPU) busWrite(address uint16, value byte) {
	c.bus.WriteAt(address, value, c.memOffset)
	c.memOffset += 4
}

// peekBus reads without consuming any of the instruction's timing budget;
// used only by the disassembly-time Decode peek below.
func (c *CPU) peekBus(address uint16) byte {
	return c.bus.ReadAt(address, 0)
}

// corruptOAM forwards to the bus the fact that a 16-bit register INC/DEC
// (or a related HL-postfix form) just left addr pointing into OAM.
func (c *CPU) corruptOAM(addr uint16, pattern int) {
	c.bus.CorruptOAM(addr, pattern)
}

// New returns a CPU positioned at the post-boot-ROM entry point (0x0100),
// as if the DMG boot ROM had already handed off control.
func New(bus Bus) *CPU {
	return &CPU{
		bus: bus,
		pc:  0x0100,
		sp:  0xFFFE,
		a:   0x01,
		f:   0xB0,
		b:   0x00,
		c:   0x13,
		d:   0x00,
		e:   0xD8,
		h:   0x01,
		l:   0x4D,
	}
}

// GetPC returns the current program counter, mainly for debugging/disassembly.
func (c *CPU) GetPC() uint16 { return c.pc }

// GetSP returns the current stack pointer, mainly for debugging/disassembly.
func (c *CPU) GetSP() uint16 { return c.sp }

// RegisterSnapshot is a read-only copy of CPU state, used by debuggers/disassemblers
// that need more than PC/SP without reaching into package-private fields.
type RegisterSnapshot struct {
	A, B, C, D, E, F, H, L uint8
	SP, PC                 uint16
	IME                    bool
	Cycles                 uint64
}

// Snapshot returns the current register state for debugging/disassembly.
func (c *CPU) Snapshot() RegisterSnapshot {
	return RegisterSnapshot{
		A: c.a, B: c.b, C: c.c, D: c.d, E: c.e, F: c.f, H: c.h, L: c.l,
		SP:     c.sp,
		PC:     c.pc,
		IME:    c.interruptsEnabled,
		Cycles: c.cycles,
	}
}

// IsHalted reports whether the CPU is in the HALT low-power state.
func (c *CPU) IsHalted() bool { return c.halted }

// IsStopped reports whether the CPU is in the STOP low-power state.
func (c *CPU) IsStopped() bool { return c.stopped }

// WakeFromStop clears the STOP state and starts the fixed post-STOP wake
// delay during which the CPU fetches NOPs. Called by the driver when a
// joypad line transitions low while stopped.
func (c *CPU) WakeFromStop() {
	if !c.stopped {
		return
	}
	c.stopped = false
	c.stopWakeDelay = 217
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

// interruptVectors maps interrupt bit index (0..4) to its service routine address.
var interruptVectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

// handleInterrupts checks IE & IF for a pending interrupt. If IME is set, it
// services the lowest-numbered one: push PC, jump to its vector, clear the
// flag, disable IME, and charge 20 T-cycles. It returns whether any interrupt
// bit was pending, regardless of whether IME allowed it to be serviced - the
// caller uses this to know whether a HALT should wake up.
func (c *CPU) handleInterrupts() bool {
	c.memOffset = 0
	ifReg := c.busRead(addr.IF)
	ieReg := c.busRead(addr.IE)
	pending := ifReg & ieReg & 0x1F
	if pending == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	var bitIdx uint8
	for bitIdx = 0; bitIdx < 5; bitIdx++ {
		if pending&(1<<bitIdx) != 0 {
			break
		}
	}

	c.interruptsEnabled = false
	c.busWrite(addr.IF, ifReg&^(1<<bitIdx))
	c.pushStack(c.pc)
	c.pc = interruptVectors[bitIdx]
	c.cycles += 20

	return true
}

// Step executes exactly one observable CPU operation - an interrupt dispatch,
// a single halted/stopped idle tick, or one instruction - and returns its
// T-cycle cost (always a multiple of 4).
func (c *CPU) Step() int {
	startCycles := c.cycles
	pending := c.handleInterrupts()
	if c.cycles != startCycles {
		return 20
	}

	if c.stopped {
		return 4
	}

	if c.halted {
		if pending {
			c.halted = false
			if !c.interruptsEnabled {
				c.haltBug = true
			}
		} else {
			c.cycles += 4
			return 4
		}
	}

	if c.stopWakeDelay > 0 {
		c.stopWakeDelay -= 4
		c.cycles += 4
		return 4
	}

	cycles := c.execOne()

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	c.cycles += uint64(cycles)
	return cycles
}

// execOne fetches and runs the instruction at PC. When haltBug is set, the
// opcode byte is read without advancing PC first, so it is effectively
// consumed twice across two calls to execOne.
func (c *CPU) execOne() int {
	c.memOffset = 0
	var opcodeByte uint8
	if c.haltBug {
		opcodeByte = c.busRead(c.pc)
		c.haltBug = false
	} else {
		opcodeByte = c.busRead(c.pc)
		c.pc++
	}

	if opcodeByte == 0xCB {
		sub := c.busRead(c.pc)
		c.pc++
		c.currentOpcode = 0xCB00 | uint16(sub)
	} else {
		c.currentOpcode = uint16(opcodeByte)
	}

	handler := decode(c.currentOpcode)
	return handler(c)
}

// Decode peeks at the instruction starting at PC without consuming it,
// recording the combined opcode word (0xCBxx for prefixed instructions) on
// the CPU and returning its handler. Used by disassembly/tests.
func Decode(cpu *CPU) Opcode {
	opcodeByte := cpu.peekBus(cpu.pc)
	if opcodeByte == 0xCB {
		sub := cpu.peekBus(cpu.pc + 1)
		cpu.currentOpcode = 0xCB00 | uint16(sub)
	} else {
		cpu.currentOpcode = uint16(opcodeByte)
	}
	return decode(cpu.currentOpcode)
}
