package bundle

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/varserve/varserve/internal/xerrors"
)

const (
	// maxBundleSize caps the compressed bundle download
	maxBundleSize int64 = 200 * 1024 * 1024

	// maxSingleFile caps one extracted file, against decompression bombs
	maxSingleFile int64 = 50 * 1024 * 1024

	// maxTotalExtract caps the whole extracted tree
	maxTotalExtract int64 = 500 * 1024 * 1024
)

// extractTarGz extracts src (a .tar.gz on disk) into dst.
func extractTarGz(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return xerrors.Wrapf(err, "open %s", src)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	var totalBytes int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return xerrors.Wrap(err, "read tar header")
		}

		target, err := sanitizeTarPath(dst, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return xerrors.Wrapf(err, "mkdir %s", target)
			}

		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return xerrors.Newf("file %s exceeds max size (%d > %d)", hdr.Name, hdr.Size, maxSingleFile)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return xerrors.Wrapf(err, "mkdir parent of %s", target)
			}
			n, err := writeFile(target, tr, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			totalBytes += n
			if totalBytes > maxTotalExtract {
				return xerrors.Newf("total extracted size exceeds limit (%d bytes, max %d)", totalBytes, maxTotalExtract)
			}

		default:
			// symlinks and the rest have no business in an asset bundle
			return xerrors.Newf("unsupported file type in archive: %s (type=%d)", hdr.Name, hdr.Typeflag)
		}
	}

	return nil
}

// sanitizeTarPath prevents directory traversal out of dst.
func sanitizeTarPath(dst, name string) (string, error) {
	name = filepath.Clean(name)

	if filepath.IsAbs(name) {
		return "", xerrors.Newf("absolute path in tar: %s", name)
	}
	if strings.Contains(name, "..") {
		return "", xerrors.Newf("path traversal in tar: %s", name)
	}

	target := filepath.Join(dst, name)

	if !strings.HasPrefix(filepath.Clean(target)+string(os.PathSeparator), filepath.Clean(dst)+string(os.PathSeparator)) {
		if filepath.Clean(target) != filepath.Clean(dst) {
			return "", xerrors.Newf("path escapes destination: %s", name)
		}
	}

	return target, nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, xerrors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	lr := io.LimitReader(r, maxSingleFile+1)
	n, err := io.Copy(f, lr)
	if err != nil {
		return n, xerrors.Wrapf(err, "write %s", path)
	}
	if n > maxSingleFile {
		return n, xerrors.Newf("file too large: %s (%d bytes)", path, n)
	}

	return n, nil
}
