package inference

import "testing"

func TestConformalRegressor_InsufficientSamplesYieldsInfiniteInterval(t *testing.T) {
	r := NewConformalRegressor(DefaultConformalConfig())
	r.Calibrate(10, 11)
	interval := r.Predict(12)
	if interval.Valid {
		t.Fatal("expected invalid interval with too few calibration points")
	}
}

func TestConformalRegressor_QuantileCoversResiduals(t *testing.T) {
	cfg := DefaultConformalConfig()
	r := NewConformalRegressor(cfg)
	for i := 0; i < 20; i++ {
		r.Calibrate(10, 10.5)
	}
	q, ok := r.ConformalQuantile()
	if !ok {
		t.Fatal("expected a quantile with 20 calibration points")
	}
	if q < 0.49 || q > 0.51 {
		t.Fatalf("quantile = %v, want ~0.5", q)
	}
	interval := r.Predict(10)
	if !interval.Valid {
		t.Fatal("expected valid interval")
	}
	if interval.Lower > 10 || interval.Upper < 10 {
		t.Fatalf("interval [%v,%v] does not contain prediction", interval.Lower, interval.Upper)
	}
}

func TestConformalQuantileIndex_ClampedToLastElement(t *testing.T) {
	if got := conformalQuantileIndex(10, 0.01); got != 9 {
		t.Fatalf("got %d, want 9 (clamped)", got)
	}
}

func TestConformalClassifier_PredictionSetContainsTrueClassMostOfTheTime(t *testing.T) {
	c := NewConformalClassifier(DefaultConformalConfig())
	for i := 0; i < 30; i++ {
		c.Calibrate("useful", []ClassPValue{
			{Class: "useful", PValue: 0.9},
			{Class: "zombie", PValue: 0.1},
		})
	}
	set := c.Predict([]ClassPValue{
		{Class: "useful", PValue: 0.9},
		{Class: "zombie", PValue: 0.1},
	})
	if !set.Valid {
		t.Fatal("expected valid prediction set")
	}
	found := false
	for _, cl := range set.Classes {
		if cl == "useful" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'useful' in prediction set, got %v", set.Classes)
	}
	if set.MostLikely != "useful" {
		t.Fatalf("most likely = %s, want useful", set.MostLikely)
	}
}

func TestAdaptiveConformalRegressor_AlphaStaysInBounds(t *testing.T) {
	r := NewAdaptiveConformalRegressor(DefaultConformalConfig(), 0.05)
	for i := 0; i < 50; i++ {
		r.CalibrateWithFeedback(10, 15)
	}
	a := r.AdaptiveAlpha()
	if a < 0.01 || a > 0.5 {
		t.Fatalf("adaptive alpha %v out of [0.01,0.5]", a)
	}
}
