package sim

// Register offsets and bits of the DWC2 core, mirrored from the layout the
// controller driver programs.
const (
	regGAHBCFG   = 0x008
	regGUSBCFG   = 0x00C
	regGRSTCTL   = 0x010
	regGINTSTS   = 0x014
	regGINTMSK   = 0x018
	regGRXFSIZ   = 0x024
	regGNPTXFSIZ = 0x028
	regDPTXFSIZ  = 0x100

	regDCFG     = 0x800
	regDCTL     = 0x804
	regDSTS     = 0x808
	regDIEPMSK  = 0x810
	regDOEPMSK  = 0x814
	regDAINT    = 0x818
	regDAINTMSK = 0x81C

	regDIEPBase = 0x900
	regDOEPBase = 0xB00
	regEPStride = 0x20
	regEPEnd    = regDOEPBase + 16*regEPStride

	regEPCTL  = 0x00
	regEPINT  = 0x08
	regEPTSIZ = 0x10
	regEPDMA  = 0x14

	coreSize = 0x1000
)

const (
	ahbGlblIntrEn = 1 << 0
	ahbDMAEn      = 1 << 5

	usbForceDevMode = 1 << 30

	rstCSftRst = 1 << 0
	rstRxFFlsh = 1 << 4
	rstTxFFlsh = 1 << 5
	rstTxFNum  = 0x1F << 6
	rstAHBIdle = 1 << 31

	intUSBRst   = 1 << 12
	intEnumDone = 1 << 13
	intIEPInt   = 1 << 18
	intOEPInt   = 1 << 19

	dcfgAddrShift = 4
	dcfgAddrMask  = 0x7F << dcfgAddrShift

	dctlSftDiscon = 1 << 1

	dstsSpdShift = 1

	ctlMPS      = 0x7FF
	ctlEP0MPS   = 0x3
	ctlUSBAct   = 1 << 15
	ctlNAKSts   = 1 << 17
	ctlStall    = 1 << 21
	ctlCNAK     = 1 << 26
	ctlSNAK     = 1 << 27
	ctlSetD0PID = 1 << 28
	ctlEPDis    = 1 << 30
	ctlEPEna    = 1 << 31
	ctlWriteOne = ctlCNAK | ctlSNAK | ctlSetD0PID | ctlEPDis

	epXferCompl = 1 << 0
	epSetup     = 1 << 3

	tsizXferMask  = 0x7FFFF
	tsiz0XferMask = 0x7F
	tsizPktShift  = 19
	tsizPktMask   = 0x3FF
)

// PHY and power management.
const (
	phyPWR = 0x0
	phyCLK = 0x4
	phyRST = 0x8

	phyPowerOff = 1<<0 | 1<<3 | 1<<4
	phyReset    = 1 << 0
	isolDevice  = 1 << 0
)
