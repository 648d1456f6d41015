package dwc2

// Core global register offsets.
const (
	offsetGOTGCTL   = 0x000
	offsetGAHBCFG   = 0x008
	offsetGUSBCFG   = 0x00C
	offsetGRSTCTL   = 0x010
	offsetGINTSTS   = 0x014
	offsetGINTMSK   = 0x018
	offsetGRXFSIZ   = 0x024
	offsetGNPTXFSIZ = 0x028
	offsetDPTXFSIZ  = 0x100 // DPTXFSIZn at 0x100 + 4*n, n = 1..15
)

// Device mode register offsets.
const (
	offsetDCFG     = 0x800
	offsetDCTL     = 0x804
	offsetDSTS     = 0x808
	offsetDIEPMSK  = 0x810
	offsetDOEPMSK  = 0x814
	offsetDAINT    = 0x818
	offsetDAINTMSK = 0x81C

	offsetDIEPBase = 0x900
	offsetDOEPBase = 0xB00
	endpointStride = 0x20

	offsetDxEPCTL  = 0x00
	offsetDxEPINT  = 0x08
	offsetDxEPTSIZ = 0x10
	offsetDxEPDMA  = 0x14
)

// GAHBCFG bits.
const (
	gahbcfgGlblIntrEn  = 1 << 0
	gahbcfgHBstLenIncr = 3 << 1 // INCR4
	gahbcfgDMAEn       = 1 << 5
	gahbcfgNPTxFEmpLvl = 1 << 7
	gahbcfgPTxFEmpLvl  = 1 << 8
)

// GUSBCFG bits.
const (
	gusbcfgPHYIf16        = 1 << 3
	gusbcfgULPIUTMISel    = 1 << 4
	gusbcfgUSBTrdTimShift = 10
	gusbcfgUSBTrdTimMask  = 0xF << gusbcfgUSBTrdTimShift
	gusbcfgForceHostMode  = 1 << 29
	gusbcfgForceDevMode   = 1 << 30
)

// GRSTCTL bits.
const (
	grstctlCSftRst     = 1 << 0
	grstctlRxFFlsh     = 1 << 4
	grstctlTxFFlsh     = 1 << 5
	grstctlTxFNumShift = 6
	grstctlTxFNumAll   = 0x10 << grstctlTxFNumShift
	grstctlAHBIdle     = 1 << 31
)

// GINTSTS / GINTMSK bits.
const (
	gintCurMode  = 1 << 0
	gintUSBRst   = 1 << 12
	gintEnumDone = 1 << 13
	gintIEPInt   = 1 << 18
	gintOEPInt   = 1 << 19
)

// DCFG bits.
const (
	dcfgDevSpdMask    = 0x3
	dcfgDevSpdHigh    = 0x0
	dcfgDevAddrShift  = 4
	dcfgDevAddrMask   = 0x7F << dcfgDevAddrShift
	dcfgNZStsOUTHShk  = 1 << 2
	dcfgPerFrIntShift = 11
)

// DCTL bits.
const (
	dctlSftDiscon = 1 << 1
	dctlCGNPInNAK = 1 << 8
)

// DSTS enumerated speed.
const (
	dstsEnumSpdShift = 1
	dstsEnumSpdMask  = 0x3 << dstsEnumSpdShift
	dstsEnumSpdHigh  = 0x0
	dstsEnumSpdFull  = 0x1 // 30/60 MHz PHY clock
	dstsEnumSpdLow   = 0x2
	dstsEnumSpdFull4 = 0x3 // 48 MHz PHY clock
)

// DIEPCTLn / DOEPCTLn bits.
const (
	depctlMPSMask      = 0x7FF
	depctlEP0MPSMask   = 0x3
	depctlNextEPShift  = 11
	depctlNextEPMask   = 0xF << depctlNextEPShift
	depctlUSBActEP     = 1 << 15
	depctlEPTypeShift  = 18
	depctlEPTypeMask   = 0x3 << depctlEPTypeShift
	depctlStall        = 1 << 21
	depctlTxFNumShift  = 22
	depctlTxFNumMask   = 0xF << depctlTxFNumShift
	depctlCNAK         = 1 << 26
	depctlSNAK         = 1 << 27
	depctlSetD0PID     = 1 << 28
	depctlEPDis        = 1 << 30
	depctlEPEna        = 1 << 31
	depctlEP0MPS64     = 0x0
	depctlEP0MPS32     = 0x1
	depctlEP0MPS16     = 0x2
	depctlEP0MPS8      = 0x3
	depctlEP0MPSFields = depctlEP0MPSMask
)

// DIEPINTn / DOEPINTn bits.
const (
	depintXferCompl = 1 << 0
	depintEPDisbld  = 1 << 1
	depintAHBErr    = 1 << 2
	depintSetup     = 1 << 3 // OUT only
)

// DIEPTSIZn / DOEPTSIZn fields.
const (
	deptsizXferSizeMask    = 0x7FFFF
	deptsizPktCntShift     = 19
	deptsizPktCntMask      = 0x3FF << deptsizPktCntShift
	deptsiz0XferSizeMask   = 0x7F
	deptsiz0PktCntMask     = 0x3 << deptsizPktCntShift
	doeptsiz0SUPCntShift   = 29
	doeptsiz0SUPCntDefault = 1 << doeptsiz0SUPCntShift
)

// DAINT / DAINTMSK layout.
const (
	daintInMask   = 0xFFFF
	daintOutShift = 16
)

// PHY control registers (S5PV210 HSPHY block).
const (
	offsetUPHYPWR = 0x00
	offsetUPHYCLK = 0x04
	offsetUPHYRST = 0x08
)

// UPHYPWR bits for PHY0 (OTG).
const (
	uphypwrPHY0Pwr      = 1 << 3
	uphypwrAnalogPwrDn  = 1 << 4
	uphypwrPHY0Suspend  = 1 << 0
	uphypwrPHY0PowerOff = uphypwrPHY0Pwr | uphypwrAnalogPwrDn | uphypwrPHY0Suspend
)

// UPHYCLK reference clock select.
const (
	uphyclkRefMask = 0x3
	uphyclk24MHz   = 0x3
)

// UPHYRST bits.
const (
	uphyrstPHY0   = 1 << 0
	uphyrstLink0  = 1 << 1
	uphyrstPHYLnk = uphyrstPHY0 | uphyrstLink0
)

// Power management isolation bit for the OTG PHY.
const usbIsolDevice = 1 << 0

func diepctl(n uint8) uint32  { return offsetDIEPBase + uint32(n)*endpointStride + offsetDxEPCTL }
func diepint(n uint8) uint32  { return offsetDIEPBase + uint32(n)*endpointStride + offsetDxEPINT }
func dieptsiz(n uint8) uint32 { return offsetDIEPBase + uint32(n)*endpointStride + offsetDxEPTSIZ }
func diepdma(n uint8) uint32  { return offsetDIEPBase + uint32(n)*endpointStride + offsetDxEPDMA }
func doepctl(n uint8) uint32  { return offsetDOEPBase + uint32(n)*endpointStride + offsetDxEPCTL }
func doepint(n uint8) uint32  { return offsetDOEPBase + uint32(n)*endpointStride + offsetDxEPINT }
func doeptsiz(n uint8) uint32 { return offsetDOEPBase + uint32(n)*endpointStride + offsetDxEPTSIZ }
func doepdma(n uint8) uint32  { return offsetDOEPBase + uint32(n)*endpointStride + offsetDxEPDMA }
func dptxfsiz(n uint8) uint32 { return offsetDPTXFSIZ + uint32(n)*4 }
