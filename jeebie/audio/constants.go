package audio

// Timing constants
// Reference: https://gbdev.io/pandocs/Audio_details.html
const (
	// cyclesPerStep documents the frame sequencer's real hardware rate -
	// 512 Hz, i.e. 4194304 Hz / 512 Hz = 8192 T-cycles. The sequencer
	// itself is clocked by divTicks from memory.Timer.Tick (bit 12 of the
	// real DIV counter) rather than counting this many T-cycles directly,
	// so a DIV write resets it the same way it does on hardware.
	cyclesPerStep = 8192
)

// Channel constants
const (
	// waveRAMSize is the size of wave pattern RAM in bytes (16 bytes = 32 nibbles)
	waveRAMSize = 16
)
