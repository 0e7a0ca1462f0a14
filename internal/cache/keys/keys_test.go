package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Key("mainnet", "user-deep-dive", "-7d", "user='quickdraw42'")
	k2 := Key("mainnet", "user-deep-dive", "-7d", "user='quickdraw42'")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestNoParams_PlainSegmentsOnly(t *testing.T) {
	k := Key("mainnet", "block-arrival", "-7d", "")
	if k != "v1:mainnet:block-arrival:-7d" {
		t.Fatalf("unexpected key: %s", k)
	}
	if strings.Contains(k, "params=") {
		t.Fatalf("empty params must not add a params segment: %s", k)
	}
}

func TestNormalization_SpacingVariantsProduceSameKey(t *testing.T) {
	pA := "  user =   quickdraw42 &  node = abc-001  "
	pB := "user=quickdraw42&node=abc-001"
	k1 := Key(" mainnet ", "user-deep-dive", "-7d", pA)
	k2 := Key("mainnet", "user-deep-dive", "-7d", pB)
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=&\-]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
}

func TestDifference_DifferentParamsAreDifferent(t *testing.T) {
	k1 := Key("mainnet", "user-deep-dive", "-7d", "user=a")
	k2 := Key("mainnet", "user-deep-dive", "-7d", "user=b")
	if k1 == k2 {
		t.Fatalf("different params must produce different keys")
	}
}

func TestUnicodeSafety_NoPanicAndHashSuffixPresent(t *testing.T) {
	p := "user=Göteborg-雪"
	k := Key("mainnet", "user-deep-dive", "-31d", p)

	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}

	m := regexp.MustCompile(`:p=([0-9a-f]{16})$`).FindStringSubmatch(k)
	if len(m) != 2 {
		t.Fatalf("missing or invalid :p=<hex64> suffix in key: %s", k)
	}

	if !strings.Contains(k, ":params=") {
		t.Fatalf("missing params= segment in key: %s", k)
	}
}

func TestPrefix_CoversAllWindowVariants(t *testing.T) {
	p := Prefix("mainnet", "block-arrival")
	for _, w := range []string{"-7d", "-31d", "-90d"} {
		k := Key("mainnet", "block-arrival", w, "")
		if !strings.HasPrefix(k, p) {
			t.Fatalf("key %s not covered by prefix %s", k, p)
		}
	}
	other := Key("holesky", "block-arrival", "-7d", "")
	if strings.HasPrefix(other, p) {
		t.Fatalf("prefix %s must not cover other networks: %s", p, other)
	}
}
