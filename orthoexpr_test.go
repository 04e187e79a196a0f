package orthoexpr

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
)

func TestDetermineDelimiterBytes(t *testing.T) {
	type expectation struct {
		Input    string
		Expected rune
	}

	expectations := []expectation{
		{"gene\tvalue\nENSG00000000001\t1.5\n", '\t'},
		{"gene,value\nENSG00000000001,1.5\nENSG00000000002,2\n", ','},
		{"gene\nENSG00000000001\n", '\t'},
	}

	for _, v := range expectations {
		if got := DetermineDelimiterBytes([]byte(v.Input)); got != v.Expected {
			t.Fatalf("Expected %q for %q, got %q", v.Expected, v.Input, got)
		}
	}
}

func TestReadAllMaybeCompressed(t *testing.T) {
	payload := []byte("gene\tvalue\nENSG00000000001\t1.5\n")

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(payload)
	zw.Close()

	if dt := DetectDataType(gz.Bytes()); dt != DataTypeGzip {
		t.Fatalf("Expected gzip, got %s", dt)
	}
	if dt := DetectDataType(payload); dt != DataTypeNoCompression {
		t.Fatalf("Expected uncompressed, got %s", dt)
	}

	for _, input := range [][]byte{payload, gz.Bytes()} {
		got, err := ReadAllMaybeCompressed(io.NopCloser(bytes.NewReader(input)))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("Expected %q, got %q", payload, got)
		}
	}
}

func TestResolvePath(t *testing.T) {
	type expectation struct {
		Dir, Name string
		Expected  string
	}

	abs := filepath.Join(string(filepath.Separator), "data", "s1.tsv")

	expectations := []expectation{
		{"", "s1.tsv", "s1.tsv"},
		{"data", "s1.tsv", filepath.Join("data", "s1.tsv")},
		{"data", abs, abs},
		{"data", "gs://bucket/s1.tsv", "gs://bucket/s1.tsv"},
		{"gs://bucket/study/", "quant/s1.tsv", "gs://bucket/study/quant/s1.tsv"},
	}

	for _, v := range expectations {
		if got := ResolvePath(v.Dir, v.Name); got != v.Expected {
			t.Fatalf("ResolvePath(%q, %q): expected %q, got %q", v.Dir, v.Name, v.Expected, got)
		}
	}

	if _, _, err := SplitGoogleStoragePath("gs://bucket"); err == nil {
		t.Fatalf("Expected an error for a bucket without an object")
	}
}

func TestErrorKinds(t *testing.T) {
	err := Validationf("expression.Merge", "only %d rows", 1)
	if !errors.Is(err, ErrValidation) || errors.Is(err, ErrIO) {
		t.Fatalf("Unexpected kind matching for %v", err)
	}

	wrapped := Wrap(KindExternalService, "pipeline.Run", err)
	if KindOf(wrapped) != KindValidation {
		t.Fatalf("Wrap should keep the existing kind, got %s", KindOf(wrapped))
	}

	plain := Wrap(KindIO, "cache.Get", fmt.Errorf("disk on fire"))
	if !errors.Is(plain, ErrIO) {
		t.Fatalf("Expected an IO error, got %v", plain)
	}

	if Wrap(KindIO, "noop", nil) != nil {
		t.Fatalf("Wrapping nil should return nil")
	}
	if KindOf(errors.New("bare")) != KindUnknown {
		t.Fatalf("Expected an unknown kind for a bare error")
	}
}
