package payload

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var sample = bytes.Repeat([]byte("DRACO mesh payload "), 64)

func TestRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			wrapped, err := Compress(sample, c)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if got := Detect(wrapped); got != c {
				t.Errorf("Detect = %s, want %s", got, c)
			}

			out, detected, err := Unwrap(wrapped)
			if err != nil {
				t.Fatalf("Unwrap failed: %v", err)
			}
			if detected != c {
				t.Errorf("Unwrap detected %s, want %s", detected, c)
			}
			if !bytes.Equal(out, sample) {
				t.Errorf("round trip mismatch: %d bytes, want %d", len(out), len(sample))
			}
		})
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want Compression
	}{
		{"mesh.drc", CompressionNone},
		{"mesh.drc.zst", CompressionZSTD},
		{"MESH.ZSTD", CompressionZSTD},
		{"mesh.lz4", CompressionLZ4},
		{"mesh", CompressionNone},
	}
	for _, tt := range tests {
		if got := ForPath(tt.path); got != tt.want {
			t.Errorf("ForPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestDecompressTruncatedLZ4(t *testing.T) {
	frame, err := Compress(sample, CompressionLZ4)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"magic only", frame[:len(lz4Magic)]},
		{"inside header", frame[:len(lz4Magic)+2]},
		{"inside body", frame[:len(frame)/2]},
		{"empty frame", mustCompress(t, nil, CompressionLZ4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decompress(tt.data, CompressionLZ4)
			if err == nil {
				t.Fatalf("expected error, got %d bytes", len(out))
			}
		})
	}
}

func mustCompress(t *testing.T, data []byte, c Compression) []byte {
	t.Helper()
	out, err := Compress(data, c)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestDecompressCorrupt(t *testing.T) {
	corrupt := append(append([]byte(nil), zstdMagic...), 0xff, 0xff, 0xff)
	if _, err := Decompress(corrupt, CompressionZSTD); err == nil {
		t.Error("expected zstd error")
	}
	corrupt = append(append([]byte(nil), lz4Magic...), 0xff, 0xff, 0xff)
	if _, err := Decompress(corrupt, CompressionLZ4); err == nil {
		t.Error("expected lz4 error")
	}
	if _, err := Decompress(sample, Compression(9)); err == nil {
		t.Error("expected unknown compression error")
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	zst, err := Compress(sample, CompressionZSTD)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		data    []byte
		want    Compression
		wantErr bool
	}{
		{"raw", "mesh.drc", sample, CompressionNone, false},
		{"by extension", "mesh.drc.zst", zst, CompressionZSTD, false},
		{"by magic", "mesh.bin", zst, CompressionZSTD, false},
		{"mislabelled", "mesh.lz4", sample, CompressionLZ4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, tt.data, 0o600); err != nil {
				t.Fatal(err)
			}
			out, c, err := ReadFile(path)
			if c != tt.want {
				t.Errorf("compression = %s, want %s", c, tt.want)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadFile failed: %v", err)
			}
			if !bytes.Equal(out, sample) {
				t.Error("content mismatch")
			}
		})
	}

	if _, _, err := ReadFile(filepath.Join(dir, "missing.drc")); !os.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
}
