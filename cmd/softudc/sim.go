package main

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/softudc/dwc2"
	"github.com/ardnew/softudc/dwc2/sim"
	"github.com/ardnew/softudc/gadget/diag"
	"github.com/ardnew/softudc/gadget/loader"
	"github.com/ardnew/softudc/image"
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// maxReply bounds a single diagnostic reply read.
const maxReply = 1 << 20

// board is a simulated S5PV210 with the controller driver attached and the
// host side of the USB port.
type board struct {
	sys   *sim.System
	u     *udc.UDC
	host  *sim.Host
	speed hal.Speed
}

func (o *options) newBoard() (*board, error) {
	speed, err := o.busSpeed()
	if err != nil {
		return nil, err
	}
	cfg, err := o.simConfig()
	if err != nil {
		return nil, err
	}
	sys, err := sim.New(cfg)
	if err != nil {
		return nil, err
	}
	return &board{
		sys:   sys,
		u:     udc.New(dwc2.New(sys, sys.Platform, sys.Memory, dwc2.DefaultConfig()), sys.Platform),
		host:  sys.Host(),
		speed: speed,
	}, nil
}

// attach binds g and enumerates it as address 1.
func (b *board) attach(w io.Writer, g udc.Gadget) error {
	if err := b.u.RegisterGadget(g); err != nil {
		return err
	}
	e, err := b.host.Enumerate(b.speed, 1)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "enumerated %04x:%04x at %s speed, address %d, %d-byte configuration\n",
		e.Device.VendorID, e.Device.ProductID, e.Speed, e.Address, len(e.Configuration))
	return nil
}

func (b *board) reportJump(w io.Writer) error {
	jumps := b.sys.Platform.Jumps()
	if len(jumps) == 0 {
		return fmt.Errorf("%w: no handoff", pkg.ErrProtocol)
	}
	j := jumps[len(jumps)-1]
	fmt.Fprintf(w, "jump 0x%08x interrupts-masked=%t icache-invalidated=%t\n",
		j.Addr, j.InterruptsMasked, j.ICacheInvalidated)
	return nil
}

func newSimCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a bootloader gadget on the simulated board",
	}
	cmd.AddCommand(newSimLoadCmd(opts), newSimDiagCmd(opts))
	return cmd
}

func newSimLoadCmd(opts *options) *cobra.Command {
	var addr, exec, dump string
	var chunk int
	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Stream an image to the loader gadget and report the handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			load, err := parseAddr(addr)
			if err != nil {
				return fmt.Errorf("--addr: %w", err)
			}
			img, err := image.Load(args[0], load)
			if err != nil {
				return err
			}
			b, err := opts.newBoard()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			g := loader.New(b.sys.Memory, b.sys.Platform, loader.Config{ChunkSize: chunk})
			if err := b.attach(w, g); err != nil {
				return err
			}
			if exec != "" {
				if err := b.setExecAddr(exec); err != nil {
					return err
				}
			}
			if err := b.stream(g, img.Frame()); err != nil {
				return err
			}
			fmt.Fprintf(w, "sent %d-byte image to 0x%08x\n", len(img.Data), img.Addr)
			if err := b.reportJump(w); err != nil {
				return err
			}
			if dump != "" {
				return b.dump(dump, img)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "0x20000000", "load address for raw binaries")
	cmd.Flags().StringVar(&exec, "exec", "", "execution address to set before streaming")
	cmd.Flags().StringVar(&dump, "dump", "", "write the loaded RAM region as Intel HEX to file")
	cmd.Flags().IntVar(&chunk, "chunk", loader.DefaultConfig().ChunkSize, "loader receive chunk size")
	return cmd
}

func (b *board) setExecAddr(s string) error {
	addr, err := parseAddr(s)
	if err != nil {
		return fmt.Errorf("--exec: %w", err)
	}
	var set udc.SetupPacket
	udc.VendorSetup(&set, udc.RequestDirectionHostToDevice, loader.RequestSetExecAddr, 0, 4)
	if _, err := b.host.Control(&set, binary.LittleEndian.AppendUint32(nil, addr)); err != nil {
		return fmt.Errorf("set exec address: %w", err)
	}
	return nil
}

// stream sends frame to the loader's OUT endpoint. A transfer that ends on
// a packet boundary inside a chunk is closed with a zero-length packet.
func (b *board) stream(g *loader.Gadget, frame []byte) error {
	ep := uint8(loader.EndpointOut & 0x0F)
	if _, err := b.host.BulkOut(ep, frame); err != nil {
		return err
	}
	mps := int(b.u.Endpoint(ep).MaxPacket())
	if len(frame)%mps == 0 && len(frame)%g.Config().ChunkSize != 0 {
		if _, err := b.host.BulkOut(ep, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *board) dump(path string, img *image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.sys.Memory.DumpHex(f, img.Addr, uint32(len(img.Data)))
}

func newSimDiagCmd(opts *options) *cobra.Command {
	var file, addr string
	cmd := &cobra.Command{
		Use:   "diag [CMD...]",
		Short: "Run diagnostic gadget commands",
		Long: `Enumerates the diagnostic gadget and sends each CMD as one command line.
Without arguments, command lines are read from stdin. The line following a
memwrite is sent as its data packet. memread replies are hex dumped.

With --image, FILE is first written to RAM with memwrite packets and checked
against the gadget's checksum.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.newBoard()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			g := diag.New(b.sys.Memory, b.sys.Platform, diag.DefaultConfig())
			if err := b.attach(w, g); err != nil {
				return err
			}
			s := &diagSession{b: b, g: g, w: w}

			if file != "" {
				load, err := parseAddr(addr)
				if err != nil {
					return fmt.Errorf("--addr: %w", err)
				}
				img, err := image.Load(file, load)
				if err != nil {
					return err
				}
				if err := s.write(img); err != nil {
					return err
				}
			}

			if len(args) > 0 {
				for _, line := range args {
					if err := s.line(line); err != nil || s.detached() {
						return err
					}
				}
				return nil
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() && !s.detached() {
				if err := s.line(sc.Text()); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringVar(&file, "image", "", "image to write with memwrite before running commands")
	cmd.Flags().StringVar(&addr, "addr", "0x20000000", "load address for a raw --image")
	return cmd
}

type diagSession struct {
	b *board
	g *diag.Gadget
	w io.Writer
}

// line sends one command line, or one memwrite data packet, and prints
// whatever the gadget replies.
func (s *diagSession) line(text string) error {
	if s.g.Phase() == diag.PhaseRxData {
		return s.send([]byte(text))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := s.send([]byte(text)); err != nil {
		return err
	}
	if s.detached() {
		return s.b.reportJump(s.w)
	}
	if s.g.Phase() == diag.PhaseRxData {
		return nil
	}

	reply, err := s.reply()
	if err != nil {
		return err
	}
	switch {
	case reply == nil:
		fmt.Fprintf(s.w, "%s: no reply\n", text)
	case strings.EqualFold(strings.Fields(text)[0], "memread"):
		fmt.Fprint(s.w, hex.Dump(reply))
	default:
		fmt.Fprintf(s.w, "%s\n", reply)
	}
	return nil
}

// detached reports whether the gadget has handed off.
func (s *diagSession) detached() bool { return s.b.u.Gadget() == nil }

func (s *diagSession) send(data []byte) error {
	_, err := s.b.host.BulkOut(diag.EndpointCommandOut&0x0F, data)
	return err
}

// reply reads the IN endpoint, returning nil when the gadget has nothing
// queued.
func (s *diagSession) reply() ([]byte, error) {
	data, err := s.b.host.BulkIn(diag.EndpointCommandIn&0x0F, maxReply)
	if errors.Is(err, pkg.ErrNAK) {
		return nil, nil
	}
	return data, err
}

// write stores img with one memwrite per packet and compares the gadget's
// checksum of the region with the local one.
func (s *diagSession) write(img *image.Image) error {
	mps := int(s.b.u.Endpoint(diag.EndpointCommandOut & 0x0F).MaxPacket())
	for off := 0; off < len(img.Data); off += mps {
		end := min(off+mps, len(img.Data))
		if err := s.send(fmt.Appendf(nil, "memwrite 0x%x", img.Addr+uint32(off))); err != nil {
			return err
		}
		if s.g.Phase() != diag.PhaseRxData {
			return fmt.Errorf("%w: memwrite 0x%08x rejected", pkg.ErrProtocol, img.Addr+uint32(off))
		}
		if err := s.send(img.Data[off:end]); err != nil {
			return err
		}
	}

	if err := s.send(fmt.Appendf(nil, "checksum 0x%x %d", img.Addr, len(img.Data))); err != nil {
		return err
	}
	reply, err := s.reply()
	if err != nil {
		return err
	}
	want := fmt.Sprintf("0x%08x", img.Checksum())
	if string(reply) != want {
		return fmt.Errorf("%w: checksum %q, want %q", pkg.ErrProtocol, reply, want)
	}
	fmt.Fprintf(s.w, "wrote %d bytes to 0x%08x, checksum %s\n", len(img.Data), img.Addr, want)
	return nil
}
