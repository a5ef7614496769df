package tokens

import "testing"

func TestEstimate(t *testing.T) {
	if got := Estimate(""); got != 0 {
		t.Errorf("empty string = %d tokens", got)
	}
	short := Estimate("hello")
	long := Estimate("hello world, this is a longer sentence about token counting")
	if short <= 0 || long <= short {
		t.Errorf("estimates not monotonic: short=%d long=%d", short, long)
	}
}

func TestEstimateAll(t *testing.T) {
	a, b := Estimate("alpha"), Estimate("beta gamma")
	if got := EstimateAll("alpha", "beta gamma"); got != a+b {
		t.Errorf("EstimateAll = %d, want %d", got, a+b)
	}
}
