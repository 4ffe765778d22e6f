package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/reputation"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FileExtractor scores files on hash reputation and filetype risk.
type FileExtractor struct {
	hashes          reputation.HashReputation
	filetypes       reputation.FiletypeRisk
	maxDecompressed int64
}

func (e *FileExtractor) Category() string { return CategoryFile }

func (e *FileExtractor) Extract(ctx context.Context, in evidence.AnalysisInput) (Outcome, error) {
	p, err := evidence.PayloadAs[evidence.FilePayload](in)
	if err != nil {
		return Outcome{}, err
	}

	digest := ""
	if in.Metadata != nil {
		digest = strings.TrimSpace(in.Metadata.Hash)
	}
	if digest == "" && len(p.Content) > 0 {
		digest, err = ContentHash(p.Content, e.maxDecompressed)
		if err != nil {
			return Outcome{}, fmt.Errorf("hash file content: %w", err)
		}
	}

	verdict, err := e.hashes.Lookup(ctx, digest)
	if err != nil {
		return Outcome{}, fmt.Errorf("hash reputation: %w", err)
	}

	conf := baseline
	var indicators []string
	switch verdict {
	case reputation.KnownBad:
		indicators = append(indicators, "malware_detected")
		conf += 0.4
	case reputation.KnownGood:
		indicators = append(indicators, "verified_source")
		conf += 0.3
	default:
		indicators = append(indicators, "unverified_source")
		conf += 0.1
	}

	ext := p.Name
	if ext == "" && in.Metadata != nil {
		ext = in.Metadata.FileType
	}
	switch e.filetypes.Classify(ext) {
	case reputation.RiskExecutable:
		indicators = append(indicators, "suspicious_filetype")
		conf += 0.2
	case reputation.RiskSafe:
		indicators = append(indicators, "safe_filetype")
		conf += 0.1
	}

	return Votes(CategoryFile, conf, indicators...), nil
}

// ContentHash returns the hex SHA-256 of content. zstd frames are hashed by
// their decompressed bytes, up to limit.
func ContentHash(content []byte, limit int64) (string, error) {
	h := sha256.New()
	if !bytes.HasPrefix(content, zstdMagic) {
		h.Write(content)
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	if err := hashZstd(h, content, limit); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashZstd(h hash.Hash, content []byte, limit int64) error {
	if limit <= 0 {
		limit = DefaultLimits().MaxDecompressedBytes
	}
	zstdReader, err := zstd.NewReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zstdReader.Close()

	n, err := io.Copy(h, io.LimitReader(zstdReader, limit+1))
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	if n > limit {
		return fmt.Errorf("decompressed content exceeds %d bytes", limit)
	}
	return nil
}
