package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"finagent/models"
)

func generateTestSeries(count int, gen func(i int) models.Candle) models.PriceSeries {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	series := make(models.PriceSeries, count)
	for i := 0; i < count; i++ {
		c := gen(i)
		c.Timestamp = base.AddDate(0, 0, i)
		series[i] = c
	}
	return series
}

func linearSeries(count int, start, step float64) models.PriceSeries {
	return generateTestSeries(count, func(i int) models.Candle {
		close := start + float64(i)*step
		return models.Candle{
			Open:   close - step,
			High:   close + 0.5,
			Low:    close - 0.5,
			Close:  close,
			Volume: 1000,
		}
	})
}

func flatSeries(count int, price float64) models.PriceSeries {
	return generateTestSeries(count, func(i int) models.Candle {
		return models.Candle{Open: price, High: price, Low: price, Close: price, Volume: 1000}
	})
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name    string
		series  models.PriceSeries
		period  int
		want    float64
		wantErr bool
	}{
		{name: "five bars exact window", series: linearSeries(5, 1, 1), period: 5, want: 3},
		{name: "window shorter than series", series: linearSeries(25, 1, 1), period: 20, want: 15.5},
		{name: "insufficient data", series: linearSeries(3, 1, 1), period: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SMA(tt.series, tt.period)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInsufficientData) {
					t.Fatalf("expected ErrInsufficientData, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SMA = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMA(t *testing.T) {
	series := linearSeries(5, 1, 1) // closes 1..5

	got, err := EMA(series, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// seed sma(1,2,3)=2, k=0.5: (4-2)*0.5+2=3, (5-3)*0.5+3=4
	if math.Abs(got-4) > 1e-9 {
		t.Errorf("EMA = %v, want 4", got)
	}

	if _, err := EMA(linearSeries(2, 1, 1), 3); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for short series, got %v", err)
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		series models.PriceSeries
		check  func(t *testing.T, rsi float64)
	}{
		{
			name:   "thirty rising closes reads overbought",
			series: linearSeries(30, 100, 1),
			check: func(t *testing.T, rsi float64) {
				if rsi <= 70 {
					t.Errorf("RSI = %v, want > 70 for a steady rise", rsi)
				}
			},
		},
		{
			name:   "all losses reads zero",
			series: linearSeries(30, 130, -1),
			check: func(t *testing.T, rsi float64) {
				if rsi != 0 {
					t.Errorf("RSI = %v, want 0 for a steady fall", rsi)
				}
			},
		},
		{
			name:   "flat series reads neutral",
			series: flatSeries(30, 100),
			check: func(t *testing.T, rsi float64) {
				if rsi != 50 {
					t.Errorf("RSI = %v, want 50 for a flat series", rsi)
				}
			},
		},
		{
			name: "mixed series stays inside bounds",
			series: generateTestSeries(40, func(i int) models.Candle {
				close := 100 + 3*math.Sin(float64(i)/2)
				return models.Candle{Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 500}
			}),
			check: func(t *testing.T, rsi float64) {
				if rsi < 0 || rsi > 100 {
					t.Errorf("RSI = %v, want within [0,100]", rsi)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.series, DefaultRSIPeriod)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}

	t.Run("requires period plus one bars", func(t *testing.T) {
		if _, err := RSI(linearSeries(14, 100, 1), 14); !errors.Is(err, models.ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData at 14 bars, got %v", err)
		}
		if _, err := RSI(linearSeries(15, 100, 1), 14); err != nil {
			t.Errorf("expected success at 15 bars, got %v", err)
		}
	})
}

func TestMACD(t *testing.T) {
	t.Run("uptrend puts the line above zero", func(t *testing.T) {
		got, err := MACD(linearSeries(60, 100, 1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Line <= 0 {
			t.Errorf("MACD line = %v, want > 0 on an uptrend", got.Line)
		}
		if math.Abs(got.Hist-(got.Line-got.Signal)) > 1e-9 {
			t.Errorf("histogram %v does not equal line-signal %v", got.Hist, got.Line-got.Signal)
		}
	})

	t.Run("downtrend puts the line below zero", func(t *testing.T) {
		got, err := MACD(linearSeries(60, 200, -1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Line >= 0 {
			t.Errorf("MACD line = %v, want < 0 on a downtrend", got.Line)
		}
	})

	t.Run("requires slow plus signal bars", func(t *testing.T) {
		if _, err := MACD(linearSeries(34, 100, 1)); !errors.Is(err, models.ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData at 34 bars, got %v", err)
		}
		if _, err := MACD(linearSeries(35, 100, 1)); err != nil {
			t.Errorf("expected success at 35 bars, got %v", err)
		}
	})
}

func TestBollinger(t *testing.T) {
	t.Run("flat series collapses the bands", func(t *testing.T) {
		got, err := Bollinger(flatSeries(25, 50), DefaultBollingerN, DefaultBollingerK)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Upper != 50 || got.Middle != 50 || got.Lower != 50 {
			t.Errorf("bands = %+v, want all 50", got)
		}
	})

	t.Run("band ordering holds on varied input", func(t *testing.T) {
		series := generateTestSeries(50, func(i int) models.Candle {
			close := 100 + 10*math.Sin(float64(i))
			return models.Candle{Open: close, High: close + 2, Low: close - 2, Close: close, Volume: 100}
		})
		got, err := Bollinger(series, DefaultBollingerN, DefaultBollingerK)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !(got.Upper >= got.Middle && got.Middle >= got.Lower) {
			t.Errorf("band ordering violated: %+v", got)
		}
	})

	t.Run("middle is the window mean", func(t *testing.T) {
		got, err := Bollinger(linearSeries(25, 1, 1), 20, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got.Middle-15.5) > 1e-9 {
			t.Errorf("middle = %v, want 15.5", got.Middle)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		if _, err := Bollinger(linearSeries(10, 1, 1), 20, 2); !errors.Is(err, models.ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData, got %v", err)
		}
	})
}

func TestStochastic(t *testing.T) {
	t.Run("steady rise reads near the top of the range", func(t *testing.T) {
		got, err := Stochastic(linearSeries(30, 100, 1), DefaultStochasticK, DefaultStochasticD)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.K < 90 || got.D < 85 {
			t.Errorf("stochastic = %+v, want K/D high on a steady rise", got)
		}
		if got.K > 100 || got.D > 100 {
			t.Errorf("stochastic = %+v, out of bounds", got)
		}
	})

	t.Run("flat range reads midpoint", func(t *testing.T) {
		got, err := Stochastic(flatSeries(30, 75), DefaultStochasticK, DefaultStochasticD)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.K != 50 || got.D != 50 {
			t.Errorf("stochastic = %+v, want 50/50 on a flat range", got)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		if _, err := Stochastic(linearSeries(10, 100, 1), 14, 3); !errors.Is(err, models.ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData, got %v", err)
		}
	})
}

func TestOBV(t *testing.T) {
	closes := []float64{10, 11, 10, 12}
	volumes := []int64{100, 200, 300, 400}
	series := generateTestSeries(4, func(i int) models.Candle {
		return models.Candle{Open: closes[i], High: closes[i], Low: closes[i], Close: closes[i], Volume: volumes[i]}
	})

	got, err := OBV(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 300 { // +200 -300 +400
		t.Errorf("OBV = %v, want 300", got)
	}

	if _, err := OBV(nil); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for empty series, got %v", err)
	}
}

func TestATR(t *testing.T) {
	series := generateTestSeries(20, func(i int) models.Candle {
		return models.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 10}
	})

	got, err := ATR(series, DefaultATRPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("ATR = %v, want 1 for constant one-point ranges", got)
	}

	if _, err := ATR(series[:10], 14); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestLevels(t *testing.T) {
	// A valley at 90 twice and a peak at 112 inside a drifting range.
	pattern := []float64{100, 96, 90, 96, 100, 105, 112, 105, 100, 96, 90, 96, 100, 104, 108, 104, 102, 103, 104, 105}
	series := generateTestSeries(len(pattern), func(i int) models.Candle {
		p := pattern[i]
		return models.Candle{Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 100}
	})

	support, resistance, err := Levels(series, 0, 0.005)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	foundValley := false
	for _, s := range support {
		if s < 92 {
			foundValley = true
		}
		if s >= series[len(series)-1].Close {
			t.Errorf("support %v is not below the current price", s)
		}
	}
	if !foundValley {
		t.Errorf("support levels %v missing the 89-91 valley", support)
	}

	foundPeak := false
	for _, r := range resistance {
		if r > 110 {
			foundPeak = true
		}
		if r <= series[len(series)-1].Close {
			t.Errorf("resistance %v is not above the current price", r)
		}
	}
	if !foundPeak {
		t.Errorf("resistance levels %v missing the 112-113 peak", resistance)
	}

	for i := 1; i < len(support); i++ {
		if support[i-1] > support[i] {
			t.Errorf("support not ascending: %v", support)
		}
	}
	for i := 1; i < len(resistance); i++ {
		if resistance[i-1] > resistance[i] {
			t.Errorf("resistance not ascending: %v", resistance)
		}
	}

	if _, _, err := Levels(series[:3], 0, 0.005); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		series  models.PriceSeries
		want    float64
		wantErr bool
	}{
		{name: "rising series is bullish", series: linearSeries(60, 100, 1), want: TrendBullish},
		{name: "falling series is bearish", series: linearSeries(60, 200, -1), want: TrendBearish},
		{name: "flat series is neutral", series: flatSeries(60, 100), want: TrendNeutral},
		{name: "short series has no trend", series: linearSeries(30, 100, 1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Trend(tt.series)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInsufficientData) {
					t.Fatalf("expected ErrInsufficientData, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Trend = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndicatorsAreDeterministicAndNonMutating(t *testing.T) {
	series := generateTestSeries(60, func(i int) models.Candle {
		close := 100 + 5*math.Sin(float64(i)/3) + float64(i)*0.1
		return models.Candle{Open: close - 0.2, High: close + 1, Low: close - 1, Close: close, Volume: int64(100 + i)}
	})
	snapshot := make(models.PriceSeries, len(series))
	copy(snapshot, series)

	rsi1, err1 := RSI(series, 14)
	rsi2, err2 := RSI(series, 14)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if rsi1 != rsi2 {
		t.Errorf("RSI not deterministic: %v vs %v", rsi1, rsi2)
	}

	macd1, _ := MACD(series)
	macd2, _ := MACD(series)
	if macd1 != macd2 {
		t.Errorf("MACD not deterministic: %+v vs %+v", macd1, macd2)
	}

	for i := range series {
		if series[i] != snapshot[i] {
			t.Fatalf("input series mutated at index %d", i)
		}
	}
}
