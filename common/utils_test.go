package common

import (
	"errors"
	"testing"
)

func TestUtilsTraceID(t *testing.T) {

	s := TraceIDUint64ToHex(0)
	if len(s) != 32 {
		t.Fatal("Wrong trace ID lenght")
	}

	i := TraceIDHexToUint64(s)
	if i != 0 {
		t.Fatal("Wrong trace ID hex")
	}

	s = TraceIDUint64ToHex(1)
	if s != "00000000000000000000000000000001" {
		t.Fatal("Wrong trace ID num")
	}

	i = TraceIDHexToUint64(s)
	if i != 1 {
		t.Fatal("Wrong trace ID hex")
	}

	s = TraceIDUint64ToHex(1 << 32)
	if s != "00000000000000000000000100000000" {
		t.Fatal("Wrong trace ID num")
	}

	i = TraceIDHexToUint64(s)
	if i != 1<<32 {
		t.Fatal("Wrong trace ID hex")
	}

	s = TraceIDUint64ToHex(1 << 63)
	if s != "00000000000000008000000000000000" {
		t.Fatal("Wrong trace ID num")
	}

	i = TraceIDHexToUint64(s)
	if i != 1<<63 {
		t.Fatal("Wrong trace ID hex")
	}
}

func TestUtilsSpanID(t *testing.T) {

	s := SpanIDUint64ToHex(0)
	if len(s) != 16 {
		t.Fatal("Wrong span ID lenght")
	}

	i := SpanIDHexToUint64(s)
	if i != 0 {
		t.Fatal("Wrong span ID hex")
	}

	s = SpanIDUint64ToHex(1)
	if s != "0000000000000001" {
		t.Fatal("Wrong span ID num")
	}

	i = SpanIDHexToUint64(s)
	if i != 1 {
		t.Fatal("Wrong span ID hex")
	}

	s = SpanIDUint64ToHex(1 << 32)
	if s != "0000000100000000" {
		t.Fatal("Wrong span ID num")
	}

	i = SpanIDHexToUint64(s)
	if i != 1<<32 {
		t.Fatal("Wrong span ID hex")
	}
}

func TestUtilsParseTraceID(t *testing.T) {

	id, err := ParseTraceID("18446744073709551615", 10, 64)
	if err != nil || id.Low != ^uint64(0) || id.High != 0 {
		t.Fatal("Invalid max 64 bit trace ID")
	}

	if _, err = ParseTraceID("18446744073709551616", 10, 64); !errors.Is(err, ErrIDOutOfRange) {
		t.Fatal("Expected out of range for 2^64")
	}

	id, err = ParseTraceID("18446744073709551616", 10, 128)
	if err != nil || id.High != 1 || id.Low != 0 {
		t.Fatal("Invalid 2^64 as 128 bit trace ID")
	}
	if id.String() != "18446744073709551616" {
		t.Fatal("Invalid 128 bit decimal round trip")
	}

	if _, err = ParseTraceID("-1", 10, 64); !errors.Is(err, ErrIDOutOfRange) {
		t.Fatal("Expected out of range for negative")
	}

	for _, s := range []string{"", "+1", "abc", "1 2"} {
		if _, err = ParseTraceID(s, 10, 64); !errors.Is(err, ErrIDSyntax) {
			t.Fatalf("Expected syntax error for %q", s)
		}
	}

	id, err = TraceIDFromHex("640cfd8d00000000abcdef0123456789")
	if err != nil || !id.Is128() {
		t.Fatal("Invalid 128 bit hex trace ID")
	}
	if id.HighHex() != "640cfd8d00000000" || id.Low != 0xabcdef0123456789 {
		t.Fatal("Invalid 128 bit hex halves")
	}
	if id.Hex() != "640cfd8d00000000abcdef0123456789" {
		t.Fatal("Invalid 128 bit hex round trip")
	}

	if _, err = TraceIDFromHex("1640cfd8d00000000abcdef0123456789"); !errors.Is(err, ErrIDOutOfRange) {
		t.Fatal("Expected out of range for 129 bits")
	}
}

func TestUtilsParseSpanID(t *testing.T) {

	id, err := ParseSpanID("1234", 10)
	if err != nil || id != 1234 {
		t.Fatal("Invalid span ID")
	}

	if _, err = ParseSpanID("18446744073709551616", 10); !errors.Is(err, ErrIDOutOfRange) {
		t.Fatal("Expected out of range")
	}

	if _, err = ParseSpanID("x", 10); !errors.Is(err, ErrIDSyntax) {
		t.Fatal("Expected syntax error")
	}
}

func TestUtilsKeyValues(t *testing.T) {

	m := GetKeyValues("a=1, b = 2 ,,c,def=${TRACECORE_TEST_MISSING:fallback}")
	if m["a"] != "1" || m["b"] != "2" {
		t.Fatal("Invalid plain tags")
	}
	if v, ok := m["c"]; !ok || v != "" {
		t.Fatal("Invalid empty tag")
	}
	if m["def"] != "fallback" {
		t.Fatal("Invalid default tag")
	}

	t.Setenv("TRACECORE_TEST_TEAM", "sre")
	m = GetKeyValues("team=${TRACECORE_TEST_TEAM:none},raw=${TRACECORE_TEST_TEAM}")
	if m["team"] != "sre" || m["raw"] != "sre" {
		t.Fatal("Invalid environment tag")
	}

	p := GetColonPairs("x-user:user.id,x-request")
	if p["x-user"] != "user.id" {
		t.Fatal("Invalid colon pair")
	}
	if _, ok := p["x-request"]; !ok {
		t.Fatal("Missing colon key")
	}

	arr := MapToArray(map[string]string{"b": "2", "a": "1"})
	if len(arr) != 2 || arr[0] != "a=1" || arr[1] != "b=2" {
		t.Fatal("Invalid map to array")
	}
}

func TestUtilsBaggage(t *testing.T) {

	b := NewBaggage()
	b.Set("z", "1")
	b.Set("a", "2")
	b.Set("z", "3")

	var keys []string
	b.Foreach(func(k, v string) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) != 2 || keys[0] != "z" || keys[1] != "a" {
		t.Fatal("Baggage must keep insertion order")
	}

	c := b.Copy()
	c.Set("n", "4")
	if b.Len() != 2 || c.Len() != 3 {
		t.Fatal("Baggage copy must be independent")
	}
	if v, _ := c.Get("z"); v != "3" {
		t.Fatal("Invalid baggage value")
	}
}

func TestUtilsPriority(t *testing.T) {

	if IsKept(PrioritySamplerDrop) || IsKept(PriorityUserDrop) || IsKept(PriorityUnset) {
		t.Fatal("Drop priorities must not be kept")
	}
	if !IsKept(PrioritySamplerKeep) || !IsKept(PriorityUserKeep) {
		t.Fatal("Keep priorities must be kept")
	}
	if PriorityName(PriorityUserKeep) != "user_keep" || PriorityName(7) != "7" {
		t.Fatal("Invalid priority name")
	}
}
