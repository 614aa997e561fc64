package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ml8s/training-harness/internal/storage"
)

// Token strategy names, recorded per file for auditability.
const (
	StrategyETag   = "etag"
	StrategySize   = "size"
	StrategySHA256 = "sha256"
)

var hex32Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// resolveToken tries the ordered strategy list and stops at the first one
// that applies and succeeds:
//
//  1. etag: a provider content token from metadata, normalized to
//     32 hex digits. Requires the ContentIdentity capability.
//  2. size: a weak "size:<n>" token, taken only when the backend cannot
//     stream bytes, since content would otherwise be verifiable.
//  3. sha256: a streamed hash of the file content in fixed-size chunks;
//     the correctness fallback, independent of chunk size.
func resolveToken(backend storage.Backend, path string, chunkSize int) (FileToken, error) {
	caps := backend.Capabilities()

	var info storage.FileInfo
	statted := false
	if caps.ContentIdentity || !caps.StreamRead {
		fi, err := backend.Stat(path)
		if err != nil {
			return FileToken{}, err
		}
		info = fi
		statted = true
	}

	if caps.ContentIdentity {
		if etag, ok := normalizeETag(info.ETag); ok {
			return FileToken{
				Path:     path,
				Token:    fmt.Sprintf("%s:%s:%d", path, etag, info.Size),
				Strategy: StrategyETag,
				Size:     info.Size,
			}, nil
		}
	}

	if !caps.StreamRead {
		if !statted {
			return FileToken{}, fmt.Errorf("no usable token strategy for %s on backend %s", path, backend.Name())
		}
		return FileToken{
			Path:     path,
			Token:    fmt.Sprintf("%s:size:%d", path, info.Size),
			Strategy: StrategySize,
			Size:     info.Size,
		}, nil
	}

	digest, n, err := streamSHA256(backend, path, chunkSize)
	if err != nil {
		return FileToken{}, err
	}
	return FileToken{
		Path:     path,
		Token:    fmt.Sprintf("%s:sha256:%s", path, digest),
		Strategy: StrategySHA256,
		Size:     n,
	}, nil
}

// normalizeETag reduces a provider token to 32 lowercase hex digits.
// Multipart-upload suffixes ("-2") and surrounding quotes are stripped;
// a base64-encoded 16-byte digest is re-encoded as hex.
func normalizeETag(etag string) (string, bool) {
	e := strings.Trim(etag, `"`)
	if e == "" {
		return "", false
	}
	if i := strings.IndexByte(e, '-'); i == 32 {
		e = e[:i]
	}
	if hex32Pattern.MatchString(e) {
		return strings.ToLower(e), true
	}
	if b, err := base64.StdEncoding.DecodeString(e); err == nil && len(b) == 16 {
		return hex.EncodeToString(b), true
	}
	return "", false
}

func streamSHA256(backend storage.Backend, path string, chunkSize int) (string, int64, error) {
	r, err := backend.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer r.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("failed streaming %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}
