package alloc

import (
	"reflect"
	"testing"
)

func TestDiscretizeLargestRemainder(t *testing.T) {
	x := []float64{33.4, 33.3, 33.3}
	caps := []float64{100, 100, 100}
	got := discretize(x, caps, 1, 100)
	want := []float64{34, 33, 33}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("discretize = %v, want %v", got, want)
	}
}

func TestDiscretizeRespectsCaps(t *testing.T) {
	got := discretize([]float64{5.7, 3.3}, []float64{5, 10}, 1, 10)
	if got[0] > 5 {
		t.Errorf("entry 0 = %v exceeds its cap of 5", got[0])
	}
	var total float64
	for _, v := range got {
		total += v
	}
	if total > 9 {
		t.Errorf("total = %v exceeds the continuous total", total)
	}
}

func TestDiscretizeRespectsMaxTotal(t *testing.T) {
	got := discretize([]float64{3.5, 3.5}, []float64{10, 10}, 1, 6)
	var total float64
	for _, v := range got {
		total += v
	}
	if total > 6 {
		t.Errorf("total = %v exceeds max total 6", total)
	}
}

func TestDiscretizeZeroUnitDisablesRounding(t *testing.T) {
	x := []float64{1.25, 2.75}
	got := discretize(x, []float64{10, 10}, 0, 10)
	if !reflect.DeepEqual(got, x) {
		t.Errorf("discretize = %v, want input untouched %v", got, x)
	}
}

func TestDiscretizeFractionalUnit(t *testing.T) {
	got := discretize([]float64{1.3, 1.3}, []float64{5, 5}, 0.5, 10)
	for _, v := range got {
		units := v / 0.5
		if units != float64(int64(units)) {
			t.Errorf("quantity %v is not a multiple of 0.5", v)
		}
	}
	var total float64
	for _, v := range got {
		total += v
	}
	// 2.6 continuous floors to 2.5 in half-unit steps.
	if total != 2.5 {
		t.Errorf("total = %v, want 2.5", total)
	}
}
