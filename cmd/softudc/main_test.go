package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/softudc/image"
	"github.com/ardnew/softudc/pkg"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFrameCommand(t *testing.T) {
	bin := writeFile(t, "app.bin", []byte("123456789"))
	out := filepath.Join(filepath.Dir(bin), "app.frame")

	_, summary, err := run(t, "", "frame", bin, "--addr", "0x20008000", "-o", out)
	if err != nil {
		t.Fatalf("frame error = %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0x00, 0x80, 0x00, 0x20, 0x11, 0x00, 0x00, 0x00}, "123456789"...)
	if !bytes.Equal(got, want) {
		t.Errorf("frame = %x, want %x", got, want)
	}
	if !strings.Contains(summary, "crc 0x29b1") {
		t.Errorf("summary = %q", summary)
	}

	stdout, _, err := run(t, "", "frame", bin, "--hex")
	if err != nil {
		t.Fatalf("frame --hex error = %v", err)
	}
	img, err := image.LoadHex(strings.NewReader(stdout))
	if err != nil || img.Addr != 0x20000000 || string(img.Data) != "123456789" {
		t.Errorf("frame --hex = %+v, %v", img, err)
	}
}

func TestSimLoad(t *testing.T) {
	payload := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 150)
	bin := writeFile(t, "stage2.bin", payload)
	dump := filepath.Join(filepath.Dir(bin), "ram.hex")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"high", []string{"sim", "load", bin}, "jump 0x20000000 "},
		{"full", []string{"sim", "load", "--speed", "full", "--addr", "0x20001000", bin}, "jump 0x20001000 "},
		{"exec", []string{"sim", "load", "--exec", "0x20000040", bin}, "jump 0x20000040 "},
		{"small chunk", []string{"sim", "load", "--chunk", "100", bin}, "jump 0x20000000 "},
		{"dump", []string{"sim", "load", "--dump", dump, bin}, "sent 600-byte image to 0x20000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, "", tt.args...)
			if err != nil {
				t.Fatalf("sim load error = %v", err)
			}
			if !strings.Contains(out, tt.want) || !strings.Contains(out, "interrupts-masked=true icache-invalidated=true") {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}

	img, err := image.Load(dump, 0)
	if err != nil {
		t.Fatalf("load dump error = %v", err)
	}
	if img.Addr != 0x20000000 || !bytes.Equal(img.Data, payload) {
		t.Errorf("dump = 0x%08x %d bytes", img.Addr, len(img.Data))
	}
}

func TestSimLoadPacketBoundary(t *testing.T) {
	tests := []struct {
		speed string
		n     int
	}{
		{"high", 1024 - 8},
		{"full", 640 - 8},
	}
	for _, tt := range tests {
		t.Run(tt.speed, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0x3C}, tt.n)
			bin := writeFile(t, "stage2.bin", payload)
			out, _, err := run(t, "", "sim", "load", "--speed", tt.speed, bin)
			if err != nil {
				t.Fatalf("sim load error = %v", err)
			}
			if want := fmt.Sprintf("sent %d-byte image to 0x20000000", tt.n); !strings.Contains(out, want) {
				t.Errorf("output = %q, want %q", out, want)
			}
			if !strings.Contains(out, "jump 0x20000000 ") {
				t.Errorf("output = %q, no jump", out)
			}
		})
	}
}

func TestLogFlags(t *testing.T) {
	bin := writeFile(t, "stage2.bin", []byte{1, 2, 3, 4})
	_, stderr, err := run(t, "", "sim", "load", "--log-level", "info", "--log-json", bin)
	t.Cleanup(func() { run(t, "", "frame", bin) })
	if err != nil {
		t.Fatalf("sim load error = %v", err)
	}
	for _, want := range []string{`"msg":"image received"`, `"component":"loader"`, `"msg":"handoff"`} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %s:\n%s", want, stderr)
		}
	}
}

func TestSimDiag(t *testing.T) {
	out, _, err := run(t, "",
		"sim", "diag",
		"memwrite 0x20000000", "hello",
		"checksum 0x20000000 5",
		"memread 0x20000000 5",
		"frobnicate",
		"execute 0x20000000",
		"checksum 0x20000000 5")
	if err != nil {
		t.Fatalf("sim diag error = %v", err)
	}
	for _, want := range []string{
		"enumerated 04e8:1234 at high speed, address 1, 46-byte configuration",
		"0x00000214\n",
		"68 65 6c 6c 6f",
		"frobnicate: no reply",
		"jump 0x20000000 interrupts-masked=true",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "0x00000214") != 1 {
		t.Errorf("command after execute was run:\n%s", out)
	}
}

func TestSimDiagImage(t *testing.T) {
	payload := make([]byte, 150)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	bin := writeFile(t, "blob.bin", payload)
	img := &image.Image{Addr: 0x20000100, Data: payload}

	out, _, err := run(t, "crc 0x20000100 150\n\n",
		"sim", "diag", "--speed", "full", "--image", bin, "--addr", "0x20000100")
	if err != nil {
		t.Fatalf("sim diag --image error = %v", err)
	}
	if !strings.Contains(out, "wrote 150 bytes to 0x20000100") {
		t.Errorf("output = %q", out)
	}
	if want := fmt.Sprintf("0x%04x\n", img.CRC16()); !strings.Contains(out, want) {
		t.Errorf("output = %q, want crc %q", out, want)
	}
}

func TestBadFlags(t *testing.T) {
	bin := writeFile(t, "x.bin", []byte{1})
	tests := []struct {
		name string
		args []string
	}{
		{"speed", []string{"sim", "load", "--speed", "super", bin}},
		{"addr", []string{"frame", "--addr", "nowhere", bin}},
		{"ram base", []string{"sim", "diag", "--ram-base", "0x1_0000_0000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := run(t, "", tt.args...); !errors.Is(err, pkg.ErrInvalidArgument) {
				t.Errorf("error = %v, want %v", err, pkg.ErrInvalidArgument)
			}
		})
	}

	if _, _, err := run(t, "", "sim", "load", "--log-level", "loud", bin); err == nil {
		t.Error("bad --log-level accepted")
	}
}
