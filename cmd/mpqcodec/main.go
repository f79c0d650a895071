// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"

	mpq "github.com/Jbbrack03/Diablo2Portable-sub003"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mpqcodec",
		Usage: "Decode and encode the compression methods used inside MPQ archives",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "max-output",
				Usage:   "refuse to produce more than this many bytes",
				Value:   mpq.MaxOutputSize,
				EnvVars: []string{"MPQCODEC_MAX_OUTPUT"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log what each command does",
			},
		},
		Before: func(ctx *cli.Context) error {
			if !ctx.Bool("verbose") {
				log.SetOutput(io.Discard)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "decode",
				Usage:     "Decompress a file with one method, or with the mask byte it starts with",
				ArgsUsage: "INPUT OUTPUT",
				Action:    decodeFile,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "method",
						Value: "auto",
						Usage: "one of " + strings.Join(mpq.DecoderNames(), ", "),
					},
					&cli.IntFlag{
						Name:     "size",
						Usage:    "decompressed size in bytes",
						Required: true,
					},
				},
			},
			{
				Name:      "compress",
				Usage:     "Compress a file and prefix it with its mask byte",
				ArgsUsage: "INPUT OUTPUT",
				Action:    compressFile,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mask",
						Value: "0x02",
						Usage: "compression mask: 0x02 zlib, 0x10 bzip2, 0x20 sparse, or sparse with one of them",
					},
				},
			},
			{
				Name:      "member",
				Usage:     "Decode the stored bytes of one archive member",
				ArgsUsage: "INPUT OUTPUT",
				Action:    decodeMemberFile,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:     "size",
						Usage:    "file size in bytes",
						Required: true,
					},
					&cli.UintFlag{
						Name:  "sector-size",
						Value: mpq.DefaultSectorSize,
					},
					&cli.StringFlag{
						Name:  "flags",
						Value: "0x00000200",
						Usage: "block table flags",
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "decryption key for encrypted members",
					},
				},
			},
			{
				Name:   "codes",
				Usage:  "Print one of the fixed PKWARE DCL code tables as CSV",
				Action: printCodes,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "table",
						Value: "literal",
						Usage: "literal, length or distance",
					},
				},
			},
		},
	}
}

func inputOutput(ctx *cli.Context) (string, string, error) {
	if ctx.NArg() != 2 {
		return "", "", fmt.Errorf("expected INPUT and OUTPUT, got %d arguments", ctx.NArg())
	}
	return ctx.Args().Get(0), ctx.Args().Get(1), nil
}

func checkSize(ctx *cli.Context, size int) error {
	if limit := ctx.Int("max-output"); size > limit {
		return fmt.Errorf("size %d is over the limit of %d bytes", size, limit)
	}
	return nil
}

// parseUint32 accepts decimal or 0x-prefixed hexadecimal.
func parseUint32(name, value string) (uint32, error) {
	n, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return uint32(n), nil
}

func decodeFile(ctx *cli.Context) error {
	inPath, outPath, err := inputOutput(ctx)
	if err != nil {
		return err
	}
	size := ctx.Int("size")
	if err := checkSize(ctx, size); err != nil {
		return err
	}

	decoder, err := mpq.DecoderFor(ctx.String("method"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}

	output, err := decoder(data, size)
	if err != nil {
		return fmt.Errorf("decode %s: %w", inPath, err)
	}
	log.Printf("decoded %d bytes into %d with method %s", len(data), len(output), ctx.String("method"))

	return os.WriteFile(outPath, output, 0644)
}

func compressFile(ctx *cli.Context) error {
	inPath, outPath, err := inputOutput(ctx)
	if err != nil {
		return err
	}
	mask, err := parseUint32("mask", ctx.String("mask"))
	if err != nil {
		return err
	}
	if mask > 0xFF {
		return fmt.Errorf("mask 0x%X does not fit in a byte", mask)
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}

	output, err := mpq.Compress(data, byte(mask))
	if err != nil {
		return fmt.Errorf("compress %s: %w", inPath, err)
	}
	log.Printf("compressed %d bytes into %d with mask 0x%02X", len(data), len(output), mask)

	return os.WriteFile(outPath, output, 0644)
}

func decodeMemberFile(ctx *cli.Context) error {
	inPath, outPath, err := inputOutput(ctx)
	if err != nil {
		return err
	}
	size := ctx.Uint("size")
	if err := checkSize(ctx, int(size)); err != nil {
		return err
	}

	flags, err := parseUint32("flags", ctx.String("flags"))
	if err != nil {
		return err
	}

	member := mpq.Member{
		FileSize:   uint32(size),
		SectorSize: uint32(ctx.Uint("sector-size")),
		Flags:      flags,
	}

	switch {
	case ctx.IsSet("key"):
		member.Key, err = parseUint32("key", ctx.String("key"))
		if err != nil {
			return err
		}
	case flags&mpq.FileEncrypted != 0:
		return fmt.Errorf("member is encrypted: pass --key")
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}

	output, err := mpq.DecodeMember(data, member)
	if err != nil {
		return fmt.Errorf("decode member %s: %w", inPath, err)
	}
	log.Printf("decoded member of %d stored bytes into %d", len(data), len(output))

	return os.WriteFile(outPath, output, 0644)
}

type codeRow struct {
	Symbol int    `csv:"symbol"`
	Length int    `csv:"length"`
	Code   string `csv:"code"`
}

func printCodes(ctx *cli.Context) error {
	entries, err := mpq.PKWareCodes(ctx.String("table"))
	if err != nil {
		return err
	}

	rows := make([]*codeRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, &codeRow{
			Symbol: e.Symbol,
			Length: e.Length,
			Code:   fmt.Sprintf("%0*b", e.Length, e.Code),
		})
	}
	return gocsv.Marshal(rows, ctx.App.Writer)
}
