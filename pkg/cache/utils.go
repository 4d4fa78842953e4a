package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams joins prefix and params with ':'.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, param := range params {
		b.WriteByte(':')
		fmt.Fprintf(&b, "%v", param)
	}
	return b.String()
}

// HashKey returns the hex MD5 of key.
func HashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BuildPattern creates a Redis pattern for key matching.
func BuildPattern(prefix string) string {
	return prefix + "*"
}

// MatchPattern reports whether key matches a Redis-style glob. Unlike
// path.Match, '*' also crosses '/' so symbols like "BTC/USDT" match.
// Supports *, ?, [abc], [^a-z] and backslash escapes.
func MatchPattern(pattern, key string) bool {
	px, kx := 0, 0
	starPx, starKx := -1, -1
	for px < len(pattern) || kx < len(key) {
		if px < len(pattern) {
			switch c := pattern[px]; c {
			case '*':
				starPx, starKx = px, kx
				px++
				continue
			case '?':
				if kx < len(key) {
					px++
					kx++
					continue
				}
			case '[':
				if kx < len(key) {
					if ok, end := matchClass(pattern, px, key[kx]); ok {
						px = end
						kx++
						continue
					}
				}
			default:
				width := 1
				if c == '\\' && px+1 < len(pattern) {
					c = pattern[px+1]
					width = 2
				}
				if kx < len(key) && key[kx] == c {
					px += width
					kx++
					continue
				}
			}
		}
		if starPx >= 0 && starKx < len(key) {
			starKx++
			px, kx = starPx+1, starKx
			continue
		}
		return false
	}
	return true
}

// matchClass matches ch against the bracket class starting at pattern[open]
// and returns the index just past the closing ']'.
func matchClass(pattern string, open int, ch byte) (bool, int) {
	i := open + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}
	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			if pattern[i+1] == ch {
				matched = true
			}
			i += 2
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if ch >= lo && ch <= hi {
				matched = true
			}
			i += 3
		default:
			if pattern[i] == ch {
				matched = true
			}
			i++
		}
	}
	if i < len(pattern) {
		i++
	}
	return matched != negate, i
}
