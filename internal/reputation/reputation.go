// Package reputation provides the side-effect-free lookups consumed by the
// extractors: file hash reputation, address blacklists, suspicious IPs and
// filetype risk.
package reputation

import (
	"context"
	"net"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Verdict is the outcome of a hash lookup.
type Verdict string

const (
	KnownGood Verdict = "known-good"
	KnownBad  Verdict = "known-bad"
	Unknown   Verdict = "unknown"
)

// Risk is the filetype risk class.
type Risk string

const (
	RiskExecutable Risk = "executable"
	RiskSafe       Risk = "safe"
	RiskNeutral    Risk = "neutral"
)

// HashReputation looks up a content hash.
type HashReputation interface {
	Lookup(ctx context.Context, hash string) (Verdict, error)
}

// AddressReputation returns the subset of addresses that are flagged.
type AddressReputation interface {
	Flagged(ctx context.Context, addresses []string) ([]string, error)
}

// IPReputation reports whether an IP is on the suspicious list.
type IPReputation interface {
	Suspicious(ip string) bool
}

// FiletypeRisk classifies a file extension.
type FiletypeRisk interface {
	Classify(ext string) Risk
}

// Lists is the static configuration behind the default lookups.
type Lists struct {
	KnownBadHashes       []string
	KnownGoodHashes      []string
	SuspiciousIPs        []string
	BlacklistedAddresses []string
	RiskyExtensions      []string
	SafeExtensions       []string
}

// DefaultLists returns built-in filetype lists and a small seed of
// suspicious networks. Hash and address lists start empty.
func DefaultLists() Lists {
	return Lists{
		SuspiciousIPs: []string{"192.168.1.100", "10.0.0.50", "203.0.113.0/24"},
		RiskyExtensions: []string{
			".exe", ".dll", ".bat", ".cmd", ".com", ".scr", ".ps1", ".vbs",
			".js", ".jar", ".msi", ".sh", ".apk", ".hta", ".lnk",
		},
		SafeExtensions: []string{
			".txt", ".pdf", ".png", ".jpg", ".jpeg", ".gif", ".csv",
			".md", ".json", ".log", ".mp3", ".mp4", ".wav",
		},
	}
}

// Static implements every lookup from in-memory sets. It is immutable after
// construction.
type Static struct {
	badHashes  map[string]struct{}
	goodHashes map[string]struct{}
	addresses  map[string]struct{}
	ips        map[string]struct{}
	nets       []*net.IPNet
	risky      map[string]struct{}
	safe       map[string]struct{}
}

// NewStatic builds lookups from lists. Suspicious IP entries may be plain
// addresses or CIDR blocks; malformed entries are skipped.
func NewStatic(l Lists) *Static {
	s := &Static{
		badHashes:  toSet(l.KnownBadHashes, strings.ToLower),
		goodHashes: toSet(l.KnownGoodHashes, strings.ToLower),
		addresses:  toSet(l.BlacklistedAddresses, strings.ToLower),
		ips:        map[string]struct{}{},
		risky:      toSet(l.RiskyExtensions, normalizeExt),
		safe:       toSet(l.SafeExtensions, normalizeExt),
	}
	for _, raw := range l.SuspiciousIPs {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, n, err := net.ParseCIDR(entry); err == nil {
				s.nets = append(s.nets, n)
			}
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			s.ips[ip.String()] = struct{}{}
		}
	}
	return s
}

// Lookup implements HashReputation. Known-bad wins over known-good.
func (s *Static) Lookup(_ context.Context, hash string) (Verdict, error) {
	h := strings.ToLower(strings.TrimSpace(hash))
	if h == "" {
		return Unknown, nil
	}
	if _, ok := s.badHashes[h]; ok {
		return KnownBad, nil
	}
	if _, ok := s.goodHashes[h]; ok {
		return KnownGood, nil
	}
	return Unknown, nil
}

// Flagged implements AddressReputation, preserving input order.
func (s *Static) Flagged(_ context.Context, addresses []string) ([]string, error) {
	var out []string
	for _, a := range addresses {
		if _, ok := s.addresses[strings.ToLower(strings.TrimSpace(a))]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Suspicious implements IPReputation.
func (s *Static) Suspicious(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	if _, ok := s.ips[parsed.String()]; ok {
		return true
	}
	for _, n := range s.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// Classify implements FiletypeRisk. ext may be a bare extension, a dotted
// extension, or a file name.
func (s *Static) Classify(ext string) Risk {
	e := normalizeExt(ext)
	if e == "" {
		return RiskNeutral
	}
	if _, ok := s.risky[e]; ok {
		return RiskExecutable
	}
	if _, ok := s.safe[e]; ok {
		return RiskSafe
	}
	return RiskNeutral
}

// CachedHashReputation memoizes a slower HashReputation with an LRU.
// Errors are not cached.
type CachedHashReputation struct {
	next  HashReputation
	cache *lru.Cache[string, Verdict]
}

// NewCachedHashReputation wraps next with an LRU of the given size.
func NewCachedHashReputation(next HashReputation, size int) (*CachedHashReputation, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, Verdict](size)
	if err != nil {
		return nil, err
	}
	return &CachedHashReputation{next: next, cache: cache}, nil
}

// Lookup implements HashReputation.
func (c *CachedHashReputation) Lookup(ctx context.Context, hash string) (Verdict, error) {
	key := strings.ToLower(strings.TrimSpace(hash))
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.next.Lookup(ctx, key)
	if err != nil {
		return Unknown, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func normalizeExt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "/\\") || (strings.Contains(s, ".") && !strings.HasPrefix(s, ".")) {
		s = filepath.Ext(s)
	}
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}

func toSet(items []string, norm func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := norm(strings.TrimSpace(it))
		if k == "" {
			continue
		}
		out[k] = struct{}{}
	}
	return out
}
