package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardnew/softudc/image"
)

func newFrameCmd() *cobra.Command {
	var addr, out string
	var hex bool
	cmd := &cobra.Command{
		Use:   "frame FILE",
		Short: "Write the loader frame for a binary or Intel HEX image",
		Long: `Reads FILE (Intel HEX for .hex and .ihex, raw binary at --addr otherwise)
and writes the header and payload the loader gadget expects. A summary with
the checksum and crc the diagnostic gadget would report goes to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			load, err := parseAddr(addr)
			if err != nil {
				return fmt.Errorf("--addr: %w", err)
			}
			img, err := image.Load(args[0], load)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writeImage(w, img, hex); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "addr 0x%08x payload %d bytes checksum 0x%08x crc 0x%04x\n",
				img.Addr, len(img.Data), img.Checksum(), img.CRC16())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "0x20000000", "load address for raw binaries")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&hex, "hex", false, "write the image as Intel HEX instead of a frame")
	return cmd
}

func writeImage(w io.Writer, img *image.Image, hex bool) error {
	if hex {
		return img.WriteHex(w)
	}
	_, err := w.Write(img.Frame())
	return err
}
