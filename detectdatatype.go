package orthoexpr

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

func (dt DataType) String() string {
	switch dt {
	case DataTypeNoCompression:
		return "uncompressed"
	case DataTypeGzip:
		return "gzip"
	case DataTypeZip:
		return "zip"
	case DataTypeXZ:
		return "xz"
	case DataTypeZ:
		return "zlib"
	case DataTypeBZip2:
		return "bzip2"
	}
	return "invalid"
}

// DetectDataType checks the leading bytes of a stream against a set of known
// compression signatures. Byte code signatures from
// https://stackoverflow.com/a/19127748/199475
func DetectDataType(head []byte) DataType {
Outer:
	for dt, sig := range byteCodeSigs {
		if len(head) < len(sig) {
			continue
		}
		for position := range sig {
			if head[position] != sig[position] {
				continue Outer
			}
		}
		return dt
	}

	return DataTypeNoCompression
}

// MaybeDecompressReadCloser peeks at the start of rc and, if it carries a
// known compression signature, returns a reader over the decompressed stream.
// Closing the returned reader closes rc.
func MaybeDecompressReadCloser(rc io.ReadCloser) (io.ReadCloser, DataType, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, DataTypeInvalid, err
	}

	dt := DetectDataType(head)

	var r io.Reader
	switch dt {
	case DataTypeGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, dt, err
		}
		r = gz
	case DataTypeZip:
		// Only the first entry of an archive is read
		zr := zipstream.NewReader(br)
		if _, err := zr.Next(); err != nil {
			return nil, dt, err
		}
		r = zr
	case DataTypeBZip2:
		r = bzip2.NewReader(br)
	case DataTypeXZ:
		x, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, dt, err
		}
		r = x
	case DataTypeZ:
		z, err := zlib.NewReader(br)
		if err != nil {
			return nil, dt, err
		}
		r = z
	default:
		r = br
	}

	return &stackedReadCloser{Reader: r, closer: rc}, dt, nil
}

// ReadAllMaybeCompressed drains rc, decompressing when needed.
func ReadAllMaybeCompressed(rc io.ReadCloser) ([]byte, error) {
	dr, _, err := MaybeDecompressReadCloser(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	defer dr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stackedReadCloser reads through a decompressor but closes the source.
type stackedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (c *stackedReadCloser) Close() error {
	if rc, ok := c.Reader.(io.Closer); ok {
		rc.Close()
	}
	return c.closer.Close()
}
