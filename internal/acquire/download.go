package acquire

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"safeguardd/pkg/types"
)

// copyBlock is the transfer chunk size; progress is published per block.
const copyBlock = 128 * 1024

// partialPath is the temporary location a transfer writes to. Only a fully
// verified file is renamed onto the canonical path.
func partialPath(asset types.ModelAsset) string {
	return asset.Path + ".partial"
}

// transfer performs one HTTP transfer attempt into the partial file, then
// verifies size and atomically moves the file into place.
func (m *Manager) transfer(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.asset.URL, nil)
	if err != nil {
		return ErrNetwork(err.Error())
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return ErrNetwork(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrNetwork("unexpected status " + resp.Status)
	}

	expected := m.asset.ExpectedBytes
	if resp.ContentLength > 0 && resp.ContentLength > expected {
		expected = resp.ContentLength
	}

	tmp := partialPath(m.asset)
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return ErrDisk(err.Error())
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrDisk(err.Error())
	}

	var received int64
	buf := make([]byte, copyBlock)
	var copyErr error
	for {
		if err := ctx.Err(); err != nil {
			copyErr = err
			break
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				copyErr = ErrDisk(werr.Error())
				break
			}
			received += int64(n)
			downloadBytes.Add(float64(n))
			m.setState(types.DownloadState{
				Phase:         types.DownloadInProgress,
				Progress:      progress(received, expected),
				ReceivedBytes: received,
				ExpectedBytes: expected,
			})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// A dropped connection mid-body leaves us short of the
			// expected size; report it as corruption, not a plain
			// network error, so the caller sees the integrity verdict.
			copyErr = rerr
			break
		}
	}
	if cerr := f.Close(); cerr != nil && copyErr == nil {
		copyErr = ErrDisk(cerr.Error())
	}

	if ctx.Err() != nil {
		_ = os.Remove(tmp)
		return ctx.Err()
	}
	if copyErr != nil {
		if IsDisk(copyErr) {
			_ = os.Remove(tmp)
			return copyErr
		}
		// Body read error: fall through to the size check, which turns a
		// short transfer into the corruption verdict.
	}

	// Integrity: size comparison is the sole verification (documented
	// limitation — no cryptographic checksum).
	fi, err := os.Stat(tmp)
	if err != nil {
		return ErrDisk(err.Error())
	}
	if fi.Size() < m.asset.ExpectedBytes {
		_ = os.Remove(tmp)
		return ErrCorrupted()
	}

	if err := os.Rename(tmp, m.asset.Path); err != nil {
		_ = os.Remove(tmp)
		return ErrDisk(err.Error())
	}
	return nil
}

func progress(received, expected int64) float64 {
	if expected <= 0 {
		return 0
	}
	p := float64(received) / float64(expected)
	if p > 1 {
		p = 1
	}
	return p
}
