package main

import (
	"fmt"
	"math"
	"os"

	"github.com/tdewolff/woff2"
)

type Info struct {
	Names bool   `short:"n" desc:"Print name table records"`
	Input string `index:"0" desc:"Input file"`
}

func (cmd *Info) Run() error {
	if err := cmd.info(); err != nil {
		Error.Println(err)
		os.Exit(1)
	}
	return nil
}

func (cmd *Info) info() error {
	b, err := readFile(cmd.Input)
	if err != nil {
		return err
	}

	h, entries, err := woff2.ParseDirectory(b)
	if err != nil {
		return err
	}

	fmt.Printf("File: %s\n\n", cmd.Input)
	fmt.Printf("flavor: 0x%08X (%s)\n", h.Flavor, flavorName(h.Flavor))
	fmt.Printf("version: %d.%d\n", h.MajorVersion, h.MinorVersion)
	fmt.Printf("length: %v\n", formatBytes(uint64(h.Length)))
	fmt.Printf("totalSfntSize: %v\n", formatBytes(uint64(h.TotalSfntSize)))
	fmt.Printf("totalCompressedSize: %v\n", formatBytes(uint64(h.TotalCompressedSize)))
	if h.MetaLength != 0 {
		fmt.Printf("metadata: offset=%d length=%d origLength=%d\n", h.MetaOffset, h.MetaLength, h.MetaOrigLength)
	}
	if h.PrivLength != 0 {
		fmt.Printf("private: offset=%d length=%d\n", h.PrivOffset, h.PrivLength)
	}

	fmt.Printf("\nWOFF2 table directory:\n")
	nLen := int(math.Log10(float64(h.TotalSfntSize)+1) + 1)
	for i, entry := range entries {
		fmt.Printf("  %2d  %s  origLength=%*d  transformLength=%*d  transform=%v (version %d)\n", i, entry.Tag, nLen, entry.OrigLength, nLen, entry.TransformLength, entry.Transform, entry.TransformVersion)
	}

	sfnt, err := woff2.Convert(b)
	if err != nil {
		return err
	}
	_, records, err := woff2.ParseSFNT(sfnt)
	if err != nil {
		return err
	}

	fmt.Printf("\nSFNT table directory:\n")
	nLen = int(math.Log10(float64(len(sfnt))) + 1)
	var name []byte
	for i, record := range records {
		fmt.Printf("  %2d  %s  checksum=0x%08X  offset=%*d  length=%*d\n", i, record.Tag, record.Checksum, nLen, record.Offset, nLen, len(record.Data))
		if record.Tag == "name" {
			name = record.Data
		}
	}

	if cmd.Names {
		if name == nil {
			Warning.Println("font has no name table")
			return nil
		}
		nameRecords, err := woff2.ParseName(name)
		if err != nil {
			return err
		}
		fmt.Printf("\nName records:\n")
		for _, record := range nameRecords {
			fmt.Printf("  platform=%d  encoding=%d  language=0x%04X  name=%3d  %q\n", record.PlatformID, record.EncodingID, record.LanguageID, record.NameID, record.String())
		}
	}
	return nil
}

func flavorName(flavor uint32) string {
	switch flavor {
	case woff2.TrueTypeFlavor:
		return "TrueType"
	case woff2.CFFFlavor:
		return "CFF"
	}
	return "unknown"
}
