// PTRA: Patient Trajectory Analysis Library
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package utils

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

// Input tables arrive either as plain text or compressed exports (MIMIC ships gzip, some eICU extracts come as zip or
// xz). The compression is detected from the leading bytes, not the file extension.

type compression byte

const (
	plainText compression = iota
	gzipped
	zipped
	xzipped
	bzipped
)

var signatures = []struct {
	kind compression
	sig  []byte
}{
	{gzipped, []byte{0x1f, 0x8b, 0x08}},
	{zipped, []byte{0x50, 0x4b, 0x03, 0x04}},
	{xzipped, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{bzipped, []byte{0x42, 0x5a, 0x68}},
}

// detectCompression peeks at the first bytes of a buffered reader without consuming them.
func detectCompression(br *bufio.Reader) compression {
	head, _ := br.Peek(6)
	for _, s := range signatures {
		if len(head) < len(s.sig) {
			continue
		}
		match := true
		for i, b := range s.sig {
			if head[i] != b {
				match = false
				break
			}
		}
		if match {
			return s.kind
		}
	}
	return plainText
}

// readCloser couples a decompressing reader with the file it reads from, so closing it closes the file.
type readCloser struct {
	io.Reader
	file *os.File
}

func (r *readCloser) Close() error {
	if c, ok := r.Reader.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.file.Close()
			return err
		}
	}
	return r.file.Close()
}

// OpenMaybeCompressed opens a file for reading and transparently decompresses gzip, zip (first entry), xz and bzip2
// content.
func OpenMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	br := bufio.NewReaderSize(f, 256*1024)
	var r io.Reader
	switch detectCompression(br) {
	case gzipped:
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, pfx.Err(err)
		}
		r = gz
	case zipped:
		zr := zipstream.NewReader(br)
		if _, err := zr.Next(); err != nil {
			f.Close()
			return nil, pfx.Err(err)
		}
		r = zr
	case xzipped:
		xr, err := xz.NewReader(br, 0)
		if err != nil {
			f.Close()
			return nil, pfx.Err(err)
		}
		r = xr
	case bzipped:
		r = bzip2.NewReader(br)
	default:
		r = br
	}
	return &readCloser{Reader: r, file: f}, nil
}

// DetermineDelimiter returns the most likely field delimiter of a CSV-like stream. The reader is consumed, so callers
// pass a copy of the head of the stream. Only the usual table delimiters are accepted; anything else falls back to a
// comma.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')
	for _, delim := range delimiters {
		if len(delim) == 1 && strings.ContainsRune(",;\t|", rune(delim[0])) {
			return rune(delim[0])
		}
	}
	return ','
}

// sniffSize is the number of bytes inspected for delimiter detection.
const sniffSize = 64 * 1024

// NewCSVReader opens a (possibly compressed) delimited table and returns a csv.Reader configured with the detected
// delimiter. The returned closer must be closed by the caller.
func NewCSVReader(path string) (*csv.Reader, io.Closer, error) {
	rc, err := OpenMaybeCompressed(path)
	if err != nil {
		return nil, nil, err
	}
	br := bufio.NewReaderSize(rc, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		rc.Close()
		return nil, nil, pfx.Err(err)
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	delim := DetermineDelimiter(bytes.NewReader(head))
	// skip a UTF-8 byte order mark
	if bom, _ := br.Peek(3); bytes.Equal(bom, []byte("\xef\xbb\xbf")) {
		br.Discard(3)
	}
	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader, rc, nil
}

// WriteWithRetry calls write for path. When that fails, the directory of path is created, parents included, and
// write is tried exactly once more.
func WriteWithRetry(path string, write func(path string) error) error {
	if err := write(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pfx.Err(err)
	}
	return write(path)
}
