package types

import "testing"

func TestOperationNameRoundTrip(t *testing.T) {
	for op := range opNames {
		name := OperationName("ecal-dqm", op)
		c, got := ParseOperation(name)
		if c != "ecal-dqm" || got != op {
			t.Fatalf("ParseOperation(%q) = %q,%v want ecal-dqm,%v", name, c, got, op)
		}
	}
}

func TestParseOperation_Unknown(t *testing.T) {
	cases := []string{"", "FOO/BAR", ServicePrefix + "x/NOPE", ServicePrefix + "NOSLASH"}
	for _, in := range cases {
		if _, op := ParseOperation(in); op != OpUnknown {
			t.Fatalf("ParseOperation(%q) = %v, want unknown", in, op)
		}
	}
}

func TestCollectorNameWithSlash(t *testing.T) {
	name := OperationName("hall/a", OpServerState)
	c, op := ParseOperation(name)
	if c != "hall/a" || op != OpServerState {
		t.Fatalf("got %q %v", c, op)
	}
}

func TestEmptySentinel(t *testing.T) {
	if !IsEmptySentinel([]byte("EMPTY")) || IsEmptySentinel([]byte("EMPT")) || len(EmptySentinel) != 5 {
		t.Fatalf("unexpected sentinel behavior")
	}
}
