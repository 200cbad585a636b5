package domain

import (
	"errors"
	"testing"
)

func TestActualStep_Gift(t *testing.T) {
	want := []Step{StepJobDetails, StepPickup, StepItemDetails}
	if TotalSteps(JobTypeGift) != len(want) {
		t.Fatalf("expected %d steps for gift, got %d", len(want), TotalSteps(JobTypeGift))
	}
	for i, w := range want {
		got, err := ActualStep(JobTypeGift, i+1)
		if err != nil {
			t.Fatalf("display %d: unexpected error: %v", i+1, err)
		}
		if got != w {
			t.Errorf("display %d: expected %s, got %s", i+1, w, got)
		}
	}
}

func TestActualStep_NonGift(t *testing.T) {
	for _, jt := range []JobType{JobTypeUnset, JobTypeMove, JobTypeRecycle} {
		if TotalSteps(jt) != 4 {
			t.Errorf("%q: expected 4 steps, got %d", jt, TotalSteps(jt))
		}
		for display := 1; display <= 4; display++ {
			got, err := ActualStep(jt, display)
			if err != nil {
				t.Fatalf("%q display %d: unexpected error: %v", jt, display, err)
			}
			if int(got) != display {
				t.Errorf("%q display %d: expected identity mapping, got %s", jt, display, got)
			}
		}
	}
}

func TestActualStep_OutOfRange(t *testing.T) {
	cases := []struct {
		jt      JobType
		display int
	}{
		{JobTypeGift, 0},
		{JobTypeGift, 4},
		{JobTypeMove, 5},
		{JobTypeRecycle, -1},
	}
	for _, c := range cases {
		if _, err := ActualStep(c.jt, c.display); !errors.Is(err, ErrStepOutOfRange) {
			t.Errorf("%q display %d: expected ErrStepOutOfRange, got %v", c.jt, c.display, err)
		}
	}
}

func TestDisplayStep_InverseOfActualStep(t *testing.T) {
	for _, jt := range append(AllJobTypes(), JobTypeUnset) {
		for display := 1; display <= TotalSteps(jt); display++ {
			actual, err := ActualStep(jt, display)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			back, err := DisplayStep(jt, actual)
			if err != nil {
				t.Fatalf("%q %s: unexpected error: %v", jt, actual, err)
			}
			if back != display {
				t.Errorf("%q: display %d -> %s -> %d", jt, display, actual, back)
			}
		}
	}

	if _, err := DisplayStep(JobTypeGift, StepDelivery); !errors.Is(err, ErrStepOutOfRange) {
		t.Errorf("expected delivery to have no display step for gift, got %v", err)
	}
}

func TestNextThenBackReturnsToSameStep(t *testing.T) {
	for _, jt := range append(AllJobTypes(), JobTypeUnset) {
		for _, s := range ApplicableSteps(jt) {
			next, ok := NextStep(jt, s)
			if !ok {
				if s != StepItemDetails {
					t.Errorf("%q: only the last step may have no successor, got %s", jt, s)
				}
				continue
			}
			if jt == JobTypeGift && next == StepDelivery {
				t.Errorf("gift: Next from %s landed on delivery", s)
			}
			prev, ok := PrevStep(jt, next)
			if !ok || prev != s {
				t.Errorf("%q: Next(%s)=%s but Back=%s", jt, s, next, prev)
			}
		}
	}
}

func TestPrevStep_First(t *testing.T) {
	if s, ok := PrevStep(JobTypeMove, StepJobDetails); ok || s != StepJobDetails {
		t.Errorf("expected no step before job details, got %s %v", s, ok)
	}
}

func TestGiftNeverPresentsDelivery(t *testing.T) {
	for _, s := range ApplicableSteps(JobTypeGift) {
		if s == StepDelivery {
			t.Fatal("delivery step listed for gift")
		}
	}
	if next, _ := NextStep(JobTypeGift, StepPickup); next != StepItemDetails {
		t.Errorf("expected pickup -> item details for gift, got %s", next)
	}
	if prev, _ := PrevStep(JobTypeGift, StepItemDetails); prev != StepPickup {
		t.Errorf("expected item details -> pickup for gift, got %s", prev)
	}
}
