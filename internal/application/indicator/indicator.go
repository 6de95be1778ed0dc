// Package indicator computes an IndicatorSnapshot from a K-line suffix. It
// is pure: same input candles always produce the same snapshot, no I/O, no
// suspension points, matching the teacher's strategy package's pure
// metric-from-orderbook computations.
package indicator

import (
	"github.com/tradeloop/enginecore/internal/domain"
)

// Config carries the tunable periods the engine needs. MACD is computed
// only when MACDEnabled is set, whatever the Fast/Slow/Signal values.
type Config struct {
	MAShortPeriod int
	MALongPeriod  int
	RSIPeriod     int
	MACDEnabled   bool
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	ATRPeriod     int
	ATREnabled    bool
	VWAPEnabled   bool
	VolumeLookback int // window used to compute avgVolume
}

const safetyBuffer = 5

// Warmup returns the minimum candle count Compute needs before it reports
// ok: max(maLong, rsiPeriod, macdSlow+macdSignal+1 when MACD is enabled,
// atrPeriod when ATR is enabled) + safety buffer.
func (c Config) Warmup() int {
	need := c.MALongPeriod
	if c.RSIPeriod > need {
		need = c.RSIPeriod
	}
	if c.MACDEnabled {
		macdNeed := c.MACDSlow + c.MACDSignal + 1
		if macdNeed > need {
			need = macdNeed
		}
	}
	if c.ATREnabled && c.ATRPeriod > need {
		need = c.ATRPeriod
	}
	return need + safetyBuffer
}

// Engine computes IndicatorSnapshots from K-line series.
type Engine struct {
	cfg Config
}

// New builds an Engine for the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute returns the snapshot for the given series, or (zero, false) when
// the series has fewer candles than the warmup requirement. Consumers must
// treat the false case as "skip this symbol for this tick" — never panic.
func (e *Engine) Compute(series domain.KlineSeries, cvd *domain.CvdEntry) (domain.IndicatorSnapshot, bool) {
	candles := series.Candles
	if len(candles) < e.cfg.Warmup() {
		return domain.IndicatorSnapshot{}, false
	}
	closes := series.Closes()

	maShort := ema(closes, e.cfg.MAShortPeriod)
	maLong := ema(closes, e.cfg.MALongPeriod)
	prevMAShort := ema(closes[:len(closes)-1], e.cfg.MAShortPeriod)
	prevMALong := ema(closes[:len(closes)-1], e.cfg.MALongPeriod)

	rsi := wilderRSI(closes, e.cfg.RSIPeriod)

	last := candles[len(candles)-1]
	snap := domain.IndicatorSnapshot{
		Symbol:      series.Symbol,
		Price:       last.Close,
		Volume:      last.Volume,
		AvgVolume:   avgVolume(candles, e.cfg.VolumeLookback),
		MAShort:     maShort,
		MALong:      maLong,
		PrevMAShort: prevMAShort,
		PrevMALong:  prevMALong,
		RSI:         rsi,
	}

	if e.cfg.MACDEnabled {
		snap.MACD = computeMACD(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	}
	if e.cfg.ATREnabled {
		snap.ATR = atr(candles, e.cfg.ATRPeriod)
		snap.HasATR = true
	}
	if e.cfg.VWAPEnabled {
		snap.VWAP = vwap(candles)
		snap.HasVWAP = true
	}
	if cvd != nil {
		snap.CVD = cvd.CVD
		snap.HasCVD = true
	}
	return snap, true
}

// ema computes the exponential moving average over the last period values of
// closes, seeding from a simple average of the first period values (standard
// smoothing convention). Returns 0 when there is not enough data.
func ema(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for _, c := range closes[:period] {
		sum += c
	}
	avg := sum / float64(period)
	for _, c := range closes[period:] {
		avg = c*k + avg*(1-k)
	}
	return avg
}

// wilderRSI computes RSI(period) using Wilder's smoothing over closes.
func wilderRSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// computeMACD returns the MACD line/signal/histogram for the current and
// previous candle, using fast/slow EMAs of the closes slice.
func computeMACD(closes []float64, fast, slow, signal int) *domain.MACDSnapshot {
	if len(closes) < slow+signal+1 {
		return nil
	}
	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow; i <= len(closes); i++ {
		sub := closes[:i]
		macdSeries = append(macdSeries, ema(sub, fast)-ema(sub, slow))
	}
	if len(macdSeries) < signal+2 {
		return nil
	}
	sigNow := ema(macdSeries, signal)
	sigPrev := ema(macdSeries[:len(macdSeries)-1], signal)
	macdNow := macdSeries[len(macdSeries)-1]
	macdPrev := macdSeries[len(macdSeries)-2]
	return &domain.MACDSnapshot{
		MACD:      macdNow,
		Signal:    sigNow,
		Histogram: macdNow - sigNow,
		PrevMACD:  macdPrev,
		PrevHist:  macdPrev - sigPrev,
	}
}

// atr computes the Average True Range over the last period candles using
// Wilder smoothing seeded from a simple average.
func atr(candles []domain.Kline, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1])
		trueRanges = append(trueRanges, tr)
	}
	sum := 0.0
	for _, tr := range trueRanges[:period] {
		sum += tr
	}
	avg := sum / float64(period)
	for _, tr := range trueRanges[period:] {
		avg = (avg*float64(period-1) + tr) / float64(period)
	}
	return avg
}

func trueRange(cur, prev domain.Kline) float64 {
	hl := cur.High - cur.Low
	hc := abs(cur.High - prev.Close)
	lc := abs(cur.Low - prev.Close)
	max := hl
	if hc > max {
		max = hc
	}
	if lc > max {
		max = lc
	}
	return max
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// vwap computes the volume-weighted average price over the supplied candles.
func vwap(candles []domain.Kline) float64 {
	var pv, v float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		v += c.Volume
	}
	if v == 0 {
		return 0
	}
	return pv / v
}

// avgVolume averages the Volume of the last lookback candles (or all
// candles when lookback <= 0 or exceeds the series length).
func avgVolume(candles []domain.Kline, lookback int) float64 {
	if len(candles) == 0 {
		return 0
	}
	n := lookback
	if n <= 0 || n > len(candles) {
		n = len(candles)
	}
	window := candles[len(candles)-n:]
	sum := 0.0
	for _, c := range window {
		sum += c.Volume
	}
	return sum / float64(len(window))
}
