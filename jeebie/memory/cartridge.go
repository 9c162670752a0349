package memory

import "github.com/valerio/go-jeebie/jeebie/util"

const titleLength = 16

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// MBCType identifies which memory bank controller a cartridge header requests.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

// ramSizeToBankCount maps the header's RAM-size code (0x149) to a number of 8KB banks.
var ramSizeToBankCount = map[uint8]uint8{
	0x00: 0,
	0x01: 1, // unofficial 2KB code, rounded up to one bank
	0x02: 1,
	0x03: 4,
	0x04: 16,
	0x05: 8,
}

// Cartridge holds the raw ROM image plus the header fields needed to pick and
// configure a memory bank controller.
type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
	isMulticart  bool
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x8000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a ROM image, parsing
// its header (0x0100-0x014F) to determine title, MBC type and RAM sizing.
func NewCartridgeWithData(bytes []byte) *Cartridge {
	title := cleanGameboyTitle(bytes[titleAddress : titleAddress+titleLength])

	cartType := bytes[cartridgeTypeAddress]
	ramSizeCode := bytes[ramSizeAddress]

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          title,
		headerChecksum: util.CombineBytes(bytes[headerChecksumAddress+1], bytes[headerChecksumAddress]),
		globalChecksum: util.CombineBytes(bytes[globalChecksumAddress+1], bytes[globalChecksumAddress]),
		version:        bytes[versionNumberAddress],
		cartType:       cartType,
		romSize:        bytes[romSizeAddress],
		ramSize:        ramSizeCode,
		ramBankCount:   ramSizeToBankCount[ramSizeCode],
	}

	copy(cart.data, bytes)
	cart.classify(cartType)

	// MBC2 has 512x4 bits of built-in RAM regardless of the header's RAM-size byte.
	if cart.mbcType == MBC2Type {
		cart.ramBankCount = 0
	}

	romBanks := 2 << cart.romSize
	if cart.mbcType == MBC1Type && romBanks >= 64 && isMulticartLogo(bytes) {
		cart.mbcType = MBC1MultiType
		cart.isMulticart = true
	}

	return cart
}

// classify maps the raw cartridge-type byte (0x0147) to an MBC family and its
// battery/RTC/rumble flags, per the standard header layout.
func (c *Cartridge) classify(cartType uint8) {
	switch cartType {
	case 0x00:
		c.mbcType = NoMBCType
	case 0x01, 0x02:
		c.mbcType = MBC1Type
	case 0x03:
		c.mbcType = MBC1Type
		c.hasBattery = true
	case 0x05:
		c.mbcType = MBC2Type
	case 0x06:
		c.mbcType = MBC2Type
		c.hasBattery = true
	case 0x0F, 0x10:
		c.mbcType = MBC3Type
		c.hasRTC = true
		c.hasBattery = true
	case 0x11, 0x12:
		c.mbcType = MBC3Type
	case 0x13:
		c.mbcType = MBC3Type
		c.hasBattery = true
	case 0x19, 0x1A:
		c.mbcType = MBC5Type
	case 0x1B:
		c.mbcType = MBC5Type
		c.hasBattery = true
	case 0x1C, 0x1D:
		c.mbcType = MBC5Type
		c.hasRumble = true
	case 0x1E:
		c.mbcType = MBC5Type
		c.hasRumble = true
		c.hasBattery = true
	default:
		c.mbcType = MBCUnknownType
	}
}

// isMulticartLogo checks whether the Nintendo logo is repeated at bank 0x10,
// which every known MBC1 multicart (e.g. the Taito/Momotarou compilations) does.
func isMulticartLogo(data []byte) bool {
	const bankSize = 0x4000
	secondBankLogo := 0x10*bankSize + logoAddress
	if secondBankLogo+48 > len(data) {
		return false
	}
	firstLogo := data[logoAddress : logoAddress+48]
	secondLogo := data[secondBankLogo : secondBankLogo+48]
	for i := range firstLogo {
		if firstLogo[i] != secondLogo[i] {
			return false
		}
	}
	return true
}

// IsCGBOnly reports whether the header's CGB flag (0x0143) marks the ROM as
// requiring Color hardware features this DMG-only core does not emulate.
func (c *Cartridge) IsCGBOnly() bool {
	return c.data[cgbFlagAddress] == 0xC0
}

// Title returns the cleaned-up cartridge title from the header.
func (c *Cartridge) Title() string {
	return c.title
}

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte attempts a write to the specified address. Writing to a cartridge has sense if the cartridge
// has extra RAM or for some special operations, like switching ROM banks.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
