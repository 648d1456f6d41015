package dwc2

// FIFO describes the static partition of the controller's data FIFO RAM,
// in 32-bit words.
type FIFO struct {
	RxDepth   uint32 // shared receive FIFO
	NPTxDepth uint32 // non-periodic (endpoint 0) transmit FIFO
	TxDepth   uint32 // each dedicated IN endpoint transmit FIFO
	TxCount   uint8  // number of dedicated transmit FIFOs (endpoints 1..TxCount)
}

// Config holds the board-specific parameters of a DWC2 controller.
type Config struct {
	CoreBase      uint32 // controller register block
	PHYBase       uint32 // UPHYPWR/UPHYCLK/UPHYRST block
	IsolationAddr uint32 // power management USB PHY isolation register
	IRQ           int    // controller interrupt line
	PHYClock      uint32 // UPHYCLK reference clock select
	FIFO          FIFO

	// SpinLimit bounds every wait on a self-clearing register bit.
	SpinLimit int
}

// DefaultConfig returns the configuration of the S5PV210 OTG block.
func DefaultConfig() Config {
	return Config{
		CoreBase:      0xEC000000,
		PHYBase:       0xEC100000,
		IsolationAddr: 0xE010E80C,
		IRQ:           56,
		PHYClock:      uphyclk24MHz,
		FIFO: FIFO{
			RxDepth:   1024,
			NPTxDepth: 1024,
			TxDepth:   1024,
			TxCount:   5,
		},
		SpinLimit: 100000,
	}
}
