package payment

import "testing"

func TestFee(t *testing.T) {
	tests := map[int]int{
		0:      0,
		-5:     0,
		100:    2,
		1000:   15,
		1033:   15,
		1034:   16,
		6666:   100,
		100000: 100,
	}
	for amount, exp := range tests {
		if got := Fee(amount); got != exp {
			t.Errorf("Fee(%d) = %d, want %d", amount, got, exp)
		}
	}
}

func TestMinorUnits(t *testing.T) {
	if got := ToMinor(150); got != 15000 {
		t.Fatalf("ToMinor(150) = %d", got)
	}
	if got := FromMinor(15000); got != 150 {
		t.Fatalf("FromMinor(15000) = %d", got)
	}
	if got := FromMinor(14950); got != 150 {
		t.Fatalf("FromMinor(14950) = %d", got)
	}
	if got := FromMinor(14949); got != 149 {
		t.Fatalf("FromMinor(14949) = %d", got)
	}
}
