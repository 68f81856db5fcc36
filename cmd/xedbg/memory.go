package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sajidur78/xedbg/internal/memory"
)

const valueTypes = "u8, u16, u32, u64, i8, i16, i32, i64, f32, f64, string"

func newPeekCmd(opts *rootOptions) *cobra.Command {
	var (
		kind     string
		deref    int
		encoding string
	)
	cmd := &cobra.Command{
		Use:   "peek <addr>",
		Short: "Reads one typed value or string from target memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			t, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			if deref > 0 {
				if addr, err = t.memory.DereferencePointer(ctx, addr, deref); err != nil {
					return err
				}
			}
			if kind == "string" {
				enc := opts.cfg.StringEncoding
				if encoding != "" {
					if enc, err = memory.LookupEncoding(encoding); err != nil {
						return err
					}
				}
				s, err := t.memory.ReadStringNullTerminated(ctx, addr, enc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "0x%08X: %q\n", addr, s)
				return nil
			}
			v, err := peekValue(ctx, t.memory, kind, addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%08X: %s\n", addr, v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "T", "u32", "Value type: "+valueTypes)
	cmd.Flags().IntVar(&deref, "deref", 0, "Follow this many 32-bit pointers first")
	cmd.Flags().StringVar(&encoding, "encoding", "", "String encoding: utf-8, latin-1, utf-16be, utf-16le")
	return cmd
}

func peekValue(ctx context.Context, c *memory.Client, kind string, addr uint32) (string, error) {
	switch kind {
	case "u8":
		return formatRead[uint8](ctx, c, addr, "0x%02X")
	case "u16":
		return formatRead[uint16](ctx, c, addr, "0x%04X")
	case "u32":
		return formatRead[uint32](ctx, c, addr, "0x%08X")
	case "u64":
		return formatRead[uint64](ctx, c, addr, "0x%016X")
	case "i8":
		return formatRead[int8](ctx, c, addr, "%d")
	case "i16":
		return formatRead[int16](ctx, c, addr, "%d")
	case "i32":
		return formatRead[int32](ctx, c, addr, "%d")
	case "i64":
		return formatRead[int64](ctx, c, addr, "%d")
	case "f32":
		return formatRead[float32](ctx, c, addr, "%g")
	case "f64":
		return formatRead[float64](ctx, c, addr, "%g")
	default:
		return "", fmt.Errorf("unknown type %q (want %s)", kind, valueTypes)
	}
}

func formatRead[T memory.Fixed](ctx context.Context, c *memory.Client, addr uint32, format string) (string, error) {
	v, err := memory.Read[T](ctx, c, addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, v), nil
}

func newPokeCmd(opts *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "poke <addr> <value>",
		Short: "Writes one typed value, or raw hex bytes, to target memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			t, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			if err := pokeValue(ctx, t.memory, kind, addr, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%08X: written\n", addr)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "T", "u32", "Value type: u8, u16, u32, u64, i8, i16, i32, i64, f32, f64, hex")
	return cmd
}

func pokeValue(ctx context.Context, c *memory.Client, kind string, addr uint32, raw string) error {
	switch kind {
	case "hex":
		b, err := hex.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("bad hex %q: %w", raw, err)
		}
		return c.WriteBytes(ctx, addr, b)
	case "u8", "u16", "u32", "u64":
		bits := map[string]int{"u8": 8, "u16": 16, "u32": 32, "u64": 64}[kind]
		v, err := strconv.ParseUint(raw, 0, bits)
		if err != nil {
			return err
		}
		switch bits {
		case 8:
			return memory.Write(ctx, c, addr, uint8(v))
		case 16:
			return memory.Write(ctx, c, addr, uint16(v))
		case 32:
			return memory.Write(ctx, c, addr, uint32(v))
		default:
			return memory.Write(ctx, c, addr, v)
		}
	case "i8", "i16", "i32", "i64":
		bits := map[string]int{"i8": 8, "i16": 16, "i32": 32, "i64": 64}[kind]
		v, err := strconv.ParseInt(raw, 0, bits)
		if err != nil {
			return err
		}
		switch bits {
		case 8:
			return memory.Write(ctx, c, addr, int8(v))
		case 16:
			return memory.Write(ctx, c, addr, int16(v))
		case 32:
			return memory.Write(ctx, c, addr, int32(v))
		default:
			return memory.Write(ctx, c, addr, v)
		}
	case "f32":
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return err
		}
		return memory.Write(ctx, c, addr, float32(v))
	case "f64":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		return memory.Write(ctx, c, addr, v)
	default:
		return fmt.Errorf("unknown type %q", kind)
	}
}

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "dump <addr> <length>",
		Short: "Dumps a memory range as a hex listing or to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			length, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			t, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			data, err := t.memory.ReadBytes(ctx, addr, length)
			if err != nil {
				return err
			}
			if outPath != "" {
				return os.WriteFile(outPath, data, 0o644)
			}
			return writeHexDump(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write raw bytes to this file instead of a listing")
	return cmd
}

func writeHexDump(w io.Writer, data []byte) error {
	d := hex.Dumper(w)
	if _, err := d.Write(data); err != nil {
		return err
	}
	return d.Close()
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	var (
		module string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "scan <signature>",
		Short: `Scans a module image for a byte signature such as "48 8B ?? 05"`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, mask, err := memory.ParseSignature(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			t, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			hits, err := t.memory.ScanSignature(ctx, nil, pattern, mask, module, !all)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no match")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "0x%08X\n", h)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&module, "module", "m", "", "Module to scan (default: last loaded)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Report every match instead of the first")
	return cmd
}
