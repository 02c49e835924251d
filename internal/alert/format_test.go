package alert

import (
	"strings"
	"testing"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

func sampleKey() poi.Key {
	return poi.Key{Deployment: "QmABC", Block: 100}
}

func TestFormatDiscrepancyDeterministicUnderRowOrder(t *testing.T) {
	s1 := poi.NewFingerprintSet()
	s1.Add(poi.Fingerprint{0x0b, 0x01}, "0xindexer3")
	s1.Add(poi.Fingerprint{0x0a, 0x01}, "0xindexer2")
	s1.Add(poi.Fingerprint{0x0a, 0x01}, "0xindexer1")

	s2 := poi.NewFingerprintSet()
	s2.Add(poi.Fingerprint{0x0a, 0x01}, "0xindexer1")
	s2.Add(poi.Fingerprint{0x0a, 0x01}, "0xindexer2")
	s2.Add(poi.Fingerprint{0x0b, 0x01}, "0xindexer3")

	m1 := FormatDiscrepancy(sampleKey(), s1, nil)
	m2 := FormatDiscrepancy(sampleKey(), s2, nil)
	if m1 != m2 {
		t.Fatalf("messages differ under row order:\n%s\n---\n%s", m1, m2)
	}
}

func TestFormatDiscrepancyLayout(t *testing.T) {
	set := poi.NewFingerprintSet()
	set.Add(poi.Fingerprint{0x0b}, "0xcc")
	set.Add(poi.Fingerprint{0x0a}, "0xbb")
	set.Add(poi.Fingerprint{0x0a}, "0xaa")

	reuse := map[string][]string{
		"0a": {"Previously used 3 days ago:\n• Network: mainnet\n• Deployment: QmOld\n• Block: 42\n• Indexer: 0xdd"},
	}
	msg := FormatDiscrepancy(sampleKey(), set, reuse)

	if !strings.HasPrefix(msg, "🚨 *New POI Discrepancy Found*") {
		t.Fatalf("missing header:\n%s", msg)
	}
	if !strings.Contains(msg, "*Deployment:* `QmABC`") || !strings.Contains(msg, "*Block:* `100`") {
		t.Fatalf("missing key fields:\n%s", msg)
	}
	// Canonical fingerprint order: 0a before 0b.
	if strings.Index(msg, "`0a`") > strings.Index(msg, "`0b`") {
		t.Fatalf("fingerprints out of canonical order:\n%s", msg)
	}
	if !strings.Contains(msg, "⚠️ *POI Reuse:*") {
		t.Fatalf("missing reuse section:\n%s", msg)
	}
	if !strings.Contains(msg, "*Submitted by:* `0xaa, 0xbb`") {
		t.Fatalf("indexers not sorted:\n%s", msg)
	}
}

func TestFormatDiscrepancyOmitsReuseWhenAbsent(t *testing.T) {
	set := poi.NewFingerprintSet()
	set.Add(poi.Fingerprint{0x0a}, "0xaa")
	set.Add(poi.Fingerprint{0x0b}, "0xbb")

	msg := FormatDiscrepancy(sampleKey(), set, map[string][]string{})
	if strings.Contains(msg, "POI Reuse") {
		t.Fatalf("unexpected reuse section:\n%s", msg)
	}
}
