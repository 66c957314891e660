package report

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

var registerZstd sync.Once

// useZstd registers the Zstandard compressor on w. Level 12 maps to
// SpeedBestCompression in klauspost/compress.
func useZstd(w *zip.Writer) {
	w.RegisterCompressor(zipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
	registerZstd.Do(func() {
		zip.RegisterDecompressor(zipMethodZstd, func(in io.Reader) io.ReadCloser {
			d, err := zstd.NewReader(in)
			if err != nil {
				return io.NopCloser(errReader{err})
			}
			return d.IOReadCloser()
		})
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// WriteBundle packs files into a zstd-compressed ZIP at dest. Entries are
// stored under their base names.
func WriteBundle(dest string, files []string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	useZstd(zw)

	for _, path := range files {
		if err := addToBundle(zw, path); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize bundle: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}

	log.Debug().
		Str("path", dest).
		Int("files", len(files)).
		Msg("Report bundle written")
	return nil
}

func addToBundle(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", filepath.Base(path), err)
	}
	header.Name = filepath.Base(path)
	header.Method = zipMethodZstd

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to bundle: %w", header.Name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s to bundle: %w", header.Name, err)
	}
	return nil
}
