// Package dwc2 implements the [udc.Transport] for the Synopsys DesignWare
// USB 2.0 OTG core found in the S5PV210, running in device mode with its
// internal DMA engine.
//
// # Bring-up
//
// [Controller.Attach] releases PHY isolation, selects the 24 MHz reference
// clock, powers and resets PHY0, then soft-resets the core, forces device
// mode and reprograms it:
//
//   - USB reset, enumeration done and endpoint interrupts unmasked
//   - every endpoint NAKing and disabled
//   - a static FIFO partition: a shared RX FIFO, the non-periodic TX FIFO
//     for endpoint 0 and one dedicated TX FIFO per IN endpoint
//   - DMA with INCR4 bursts and the global interrupt enabled
//
// # Transfers
//
// Every IN transfer flushes the endpoint's TX FIFO before it is armed. OUT
// completions report the bytes received as the armed length minus the
// residue left in DOEPTSIZn. Endpoint 0 receives SETUP packets and OUT
// data through a bounce buffer owned by the controller.
//
// # Interrupts
//
// The handler services, in order: enumeration done, USB reset, IN endpoint
// completions and OUT endpoint completions, each bitmap in ascending
// endpoint order.
//
// Register waits are bounded by [Config.SpinLimit] and fail with
// [pkg.ErrTimeout].
package dwc2
