package gate

// #region imports
import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// #endregion

// #region suspicious-keywords

var suspiciousKeywords = []string{
	"drop table",
	"union select",
	"<script",
	"javascript:",
	"onerror=",
	"eval(",
	"exec(",
	"__import__",
	"rm -rf",
	"/etc/passwd",
	"../",
	"cmd.exe",
}

// #endregion

// #region threat-signatures

var threatSignatures = []string{
	"<script>",
	"'; --",
	"%00",
	"\x00",
	"powershell -enc",
	"base64 -d | sh",
}

// #endregion

// #region payload

// payloadBytes returns the raw bytes the checks operate on: strings and byte
// slices as-is, everything else via JSON serialization (stable key order).
func payloadBytes(data any) []byte {
	switch v := data.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		blob, err := json.Marshal(v)
		if err != nil {
			return []byte{}
		}
		return blob
	}
}

func checksumHex(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// structuralElements counts leaf values in a composite payload; primitives
// count as one.
func structuralElements(data any) int {
	switch v := data.(type) {
	case map[string]any:
		n := 0
		for _, e := range v {
			n += structuralElements(e)
		}
		return n
	case []any:
		n := 0
		for _, e := range v {
			n += structuralElements(e)
		}
		return n
	default:
		return 1
	}
}

// #endregion payload

// #region pattern-analysis

// patternScore returns 1 - anomaly, where anomaly blends four lexical
// signals: suspicious-keyword hit rate (x0.4), non-printable character ratio
// (x0.3), character-frequency predictability (x0.2), byte entropy (x0.1).
func patternScore(payload []byte) float64 {
	if len(payload) == 0 {
		return 1.0
	}
	lower := strings.ToLower(string(payload))

	hits := 0
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	keywordRate := float64(hits) / float64(len(suspiciousKeywords))

	anomaly := 0.4*keywordRate +
		0.3*nonPrintableRatio(string(payload)) +
		0.2*charPredictability(payload) +
		0.1*byteEntropy(payload)

	return clamp01(1.0 - anomaly)
}

// nonPrintableRatio is the fraction of runes that are neither printable nor
// common whitespace.
func nonPrintableRatio(text string) float64 {
	total := 0
	bad := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		bad++
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}

// charPredictability is the frequency of the single most common byte. A
// payload dominated by one byte is highly predictable and anomalous.
func charPredictability(payload []byte) float64 {
	var counts [256]int
	for _, b := range payload {
		counts[b]++
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	return float64(maxCount) / float64(len(payload))
}

// byteEntropy is Shannon entropy normalized to [0,1] (8 bits max).
func byteEntropy(payload []byte) float64 {
	var counts [256]int
	for _, b := range payload {
		counts[b]++
	}
	total := float64(len(payload))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy / 8.0
}

// #endregion pattern-analysis

// #region threat-assessment

// threatScore returns 1 - (fraction of threat indicators that trigger):
// known signature present, behavioral anomaly (session access count),
// temporal anomaly (claimed timestamp skew), access-pattern anomaly
// (lifetime access count).
func (g *Gatekeeper) threatScore(payload []byte, meta Metadata, sessionCount, lifetimeCount int64) float64 {
	lower := strings.ToLower(string(payload))
	triggered := 0

	for _, sig := range threatSignatures {
		if strings.Contains(lower, sig) {
			triggered++
			break
		}
	}
	if sessionCount > g.config.SessionAnomalyCount {
		triggered++
	}
	if !meta.Timestamp.IsZero() {
		skew := g.clock().Sub(meta.Timestamp)
		if skew < 0 {
			skew = -skew
		}
		if skew > g.config.MaxTimestampSkew {
			triggered++
		}
	}
	if lifetimeCount > g.config.LifetimeAnomalyCount {
		triggered++
	}

	return 1.0 - float64(triggered)/4.0
}

// #endregion threat-assessment

// #region integrity

// integrityScore averages four sub-checks: payload size bound, structural
// validity, valid text encoding, and checksum match (passing when no
// checksum was supplied).
func (g *Gatekeeper) integrityScore(data any, payload []byte, meta Metadata) float64 {
	passed := 0

	if len(payload) < g.config.MaxPayloadBytes {
		passed++
	}
	if structuralElements(data) <= g.config.MaxCompositeEntries {
		passed++
	}
	if utf8.Valid(payload) {
		passed++
	}
	if meta.Checksum == "" || strings.EqualFold(meta.Checksum, checksumHex(payload)) {
		passed++
	}

	return float64(passed) / 4.0
}

// #endregion integrity

// #region helpers

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolScore(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// #endregion helpers
