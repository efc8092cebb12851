package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// chunkSize: size of each read/write chunk
const chunkSize = 1024 * 1024 // 1 MiB

var ErrChecksumMismatch = errors.New("copy checksum mismatch")

var bufPool = sync.Pool{
	New: func() interface{} { return make([]byte, chunkSize) },
}

// CopyResult describes a finished copy. SHA256 is only set when the copy was verified.
type CopyResult struct {
	Bytes  int64
	SHA256 string
}

// CopyThrottled copies srcPath to dstPath at no more than rateBytesPerSec (0 = unlimited).
// With verify, the source bytes are hashed on the way through and the written file is read
// back and hashed again; a difference fails with ErrChecksumMismatch.
func CopyThrottled(ctx context.Context, srcPath, dstPath string, rateBytesPerSec int64, verify bool) (CopyResult, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return CopyResult{}, fmt.Errorf("open src: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return CopyResult{}, fmt.Errorf("open dst: %w", err)
	}
	defer dst.Close()

	var limiter *rate.Limiter
	if rateBytesPerSec > 0 {
		burst := chunkSize
		if rateBytesPerSec < int64(burst) {
			burst = int(rateBytesPerSec)
		}
		limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), burst)
	}

	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	var (
		res CopyResult
		sum = sha256.New()
	)
	for {
		chunk := buf[:chunkSize]
		if limiter != nil && limiter.Burst() < len(chunk) {
			chunk = chunk[:limiter.Burst()]
		}
		n, rerr := src.Read(chunk)
		if n > 0 {
			// throttle: wait until enough tokens are available for n bytes
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return res, fmt.Errorf("rate limiter error: %w", err)
				}
			}
			if _, err := dst.Write(chunk[:n]); err != nil {
				return res, fmt.Errorf("write error: %w", err)
			}
			if verify {
				sum.Write(chunk[:n])
			}
			res.Bytes += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return res, fmt.Errorf("read error: %w", rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return res, fmt.Errorf("sync error: %w", err)
	}
	if !verify {
		return res, nil
	}

	res.SHA256 = hex.EncodeToString(sum.Sum(nil))
	written, err := FileChecksum(dstPath)
	if err != nil {
		return res, err
	}
	if written != res.SHA256 {
		return res, fmt.Errorf("%w: %s is %s, source was %s", ErrChecksumMismatch, dstPath, written, res.SHA256)
	}
	return res, nil
}

// FileChecksum returns the hex sha256 of a file.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
