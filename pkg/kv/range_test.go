package kv_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobboyms/kvsql/pkg/kv"
)

func TestPrefixRange(t *testing.T) {
	cases := []struct {
		prefix []byte
		from   []byte
		to     []byte
	}{
		{[]byte("ca"), []byte("ca"), []byte("cb")},
		{[]byte{0x01, 0xFF}, []byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, []byte{0xFF, 0xFF}, nil}, // sem sucessor: aberto à direita
		{[]byte{0x00}, []byte{0x00}, []byte{0x01}},
	}

	for _, tc := range cases {
		r := kv.PrefixRange(tc.prefix)
		if diff := cmp.Diff(tc.from, r.From); diff != "" {
			t.Errorf("PrefixRange(%v).From mismatch:\n%s", tc.prefix, diff)
		}
		if diff := cmp.Diff(tc.to, r.To); diff != "" {
			t.Errorf("PrefixRange(%v).To mismatch:\n%s", tc.prefix, diff)
		}
	}
}

func TestPrefixRangeCoversExactlyPrefix(t *testing.T) {
	eng := kv.NewMemoryEngine()
	keys := []string{"a", "ab", "ab\xff", "ab\xff\xff", "ac", "b"}
	for _, k := range keys {
		if err := eng.Set([]byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	iter := eng.ScanPrefix([]byte("ab"))
	var got []string
	for {
		entry, ok := iter.Next()
		if !ok {
			break
		}
		got = append(got, string(entry.Key))
	}
	want := []string{"ab", "ab\xff", "ab\xff\xff"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prefix coverage mismatch (-want +got):\n%s", diff)
	}
}

func TestRangeContains(t *testing.T) {
	r := kv.Range{From: []byte("b"), To: []byte("d")}
	cases := []struct {
		key  string
		want bool
	}{
		{"a", false},
		{"b", true},
		{"c", true},
		{"d", false},
	}
	for _, tc := range cases {
		if got := r.Contains([]byte(tc.key)); got != tc.want {
			t.Errorf("Contains(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}

	incl := kv.Range{From: []byte("b"), FromExcluded: true, To: []byte("d"), ToIncluded: true}
	if incl.Contains([]byte("b")) {
		t.Error("FromExcluded should exclude the lower bound")
	}
	if !incl.Contains([]byte("d")) {
		t.Error("ToIncluded should include the upper bound")
	}
}
