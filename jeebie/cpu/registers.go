package cpu

import "github.com/valerio/go-jeebie/jeebie/bit"

// getBC returns the combined 16-bit value of B and C.
func (cpu *CPU) getBC() uint16 {
	return bit.Combine(cpu.b, cpu.c)
}

// setBC splits a 16-bit value into B and C.
func (cpu *CPU) setBC(value uint16) {
	cpu.b = bit.High(value)
	cpu.c = bit.Low(value)
}

// getDE returns the combined 16-bit value of D and E.
func (cpu *CPU) getDE() uint16 {
	return bit.Combine(cpu.d, cpu.e)
}

// setDE splits a 16-bit value into D and E.
func (cpu *CPU) setDE(value uint16) {
	cpu.d = bit.High(value)
	cpu.e = bit.Low(value)
}

// getHL returns the combined 16-bit value of H and L.
func (cpu *CPU) getHL() uint16 {
	return bit.Combine(cpu.h, cpu.l)
}

// setHL splits a 16-bit value into H and L.
func (cpu *CPU) setHL(value uint16) {
	cpu.h = bit.High(value)
	cpu.l = bit.Low(value)
}

// getAF returns the combined 16-bit value of A and F. The low nibble of F is
// always zero, matching real hardware.
func (cpu *CPU) getAF() uint16 {
	return bit.Combine(cpu.a, cpu.f&0xF0)
}

// setAF splits a 16-bit value into A and F, masking F's unused low nibble.
func (cpu *CPU) setAF(value uint16) {
	cpu.a = bit.High(value)
	cpu.f = bit.Low(value) & 0xF0
}

// readImmediate fetches the byte at PC and advances PC by one.
func (cpu *CPU) readImmediate() uint8 {
	value := cpu.busRead(cpu.pc)
	cpu.pc++
	return value
}

// peekImmediate is an alias of readImmediate kept for readability at call
// sites that use the value as a relative offset rather than an operand.
func (cpu *CPU) peekImmediate() uint8 {
	return cpu.readImmediate()
}

// readSignedImmediate fetches a signed byte at PC and advances PC by one.
func (cpu *CPU) readSignedImmediate() int8 {
	return int8(cpu.readImmediate())
}

// readImmediateWord fetches the 16-bit little-endian value at PC and advances
// PC by two.
func (cpu *CPU) readImmediateWord() uint16 {
	low := cpu.readImmediate()
	high := cpu.readImmediate()
	return bit.Combine(high, low)
}

// peekImmediateWord is an alias of readImmediateWord.
func (cpu *CPU) peekImmediateWord() uint16 {
	return cpu.readImmediateWord()
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

// flagToBit returns 1 if the given flag is set, 0 otherwise.
func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

// GetA returns the accumulator, mainly for debugging/disassembly.
func (c *CPU) GetA() uint8 { return c.a }

// GetB returns register B, mainly for debugging/disassembly.
func (c *CPU) GetB() uint8 { return c.b }

// GetC returns register C, mainly for debugging/disassembly.
func (c *CPU) GetC() uint8 { return c.c }

// GetD returns register D, mainly for debugging/disassembly.
func (c *CPU) GetD() uint8 { return c.d }

// GetE returns register E, mainly for debugging/disassembly.
func (c *CPU) GetE() uint8 { return c.e }

// GetF returns the flag register, mainly for debugging/disassembly.
func (c *CPU) GetF() uint8 { return c.f }

// GetH returns register H, mainly for debugging/disassembly.
func (c *CPU) GetH() uint8 { return c.h }

// GetL returns register L, mainly for debugging/disassembly.
func (c *CPU) GetL() uint8 { return c.l }

// GetIME reports whether interrupts are currently enabled.
func (c *CPU) GetIME() bool { return c.interruptsEnabled }

// GetCycles returns the total T-cycles executed since reset.
func (c *CPU) GetCycles() uint64 { return c.cycles }

// GetFlagString renders the flag register as the classic Z N H C letter
// display, using a dash for any flag that is clear.
func (c *CPU) GetFlagString() string {
	flags := [4]struct {
		bit  Flag
		name byte
	}{
		{zeroFlag, 'Z'},
		{subFlag, 'N'},
		{halfCarryFlag, 'H'},
		{carryFlag, 'C'},
	}

	out := make([]byte, 4)
	for i, f := range flags {
		if c.isSetFlag(f.bit) {
			out[i] = f.name
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}
