package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

const capacityAh = 100

// battery is a random-walk model of a 12 V lead bank. Voltage follows state
// of charge; current, temperature and the meters drift between readings.
type battery struct {
	soc         float64 // percent
	current     float64 // A, positive while charging
	temperature float64
	coulomb     float64 // mAh
	energy      float64 // mWh
	started     time.Time
	last        time.Time
	stats       sdk.MonitorStatistics
	fg          sdk.FuelgaugeStatistics
	seen        bool
}

func newBattery(rng *rand.Rand) battery {
	return battery{
		soc:         50 + rng.Float64()*40,
		current:     -5 + rng.Float64()*30,
		temperature: 20 + rng.Float64()*15,
		coulomb:     50_000 + rng.Float64()*100_000,
		energy:      1_000_000 + rng.Float64()*5_000_000,
		fg:          sdk.FuelgaugeStatistics{FullChargeCapacity: capacityAh},
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func jitter(rng *rand.Rand, base, delta float64) float64 {
	return base + (rng.Float64()-0.5)*2*delta
}

// step advances the model to t and returns the reading taken there.
func (b *battery) step(rng *rand.Rand, t time.Time) sdk.MonitorData {
	if b.started.IsZero() {
		b.started = t
		b.last = t
	}
	elapsed := t.Sub(b.last).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	b.last = t

	charging := rng.Float64() > 0.3
	flow := math.Abs(b.current)
	socDelta := 0.1 + rng.Float64()*0.3
	if !charging {
		flow = -flow * 0.5
		socDelta = -(0.05 + rng.Float64()*0.2)
	}
	b.soc = clamp(b.soc+socDelta, 5, 100)

	base := 11.5 + b.soc/100*2.5
	if charging {
		base += 0.3
	} else {
		base -= 0.1
	}
	v1 := clamp(jitter(rng, base, 0.1), 10.5, 14.8)
	v2 := clamp(jitter(rng, base-0.1, 0.1), 10.4, 14.7)
	b.current = clamp(jitter(rng, flow, 2), -50, 100)
	b.temperature = clamp(jitter(rng, b.temperature, 1), 15, 55)

	mah := b.current * 1000 * elapsed
	mwh := mah * v1
	b.coulomb += mah
	b.energy += mwh
	b.track(v1, v2, mah, mwh, t)

	runtime := uint16(0xFFFF)
	if b.current < 0 {
		runtime = uint16(math.Min(0xFFFE, b.soc/100*capacityAh/-b.current*60))
	}

	return sdk.MonitorData{
		Time:         uint32(t.Unix()),
		Voltage1:     float32(v1),
		Voltage2:     float32(v2),
		Current:      float32(b.current),
		Power:        float32(v1 * b.current),
		Temperature:  float32(b.temperature),
		CoulombMeter: int64(b.coulomb),
		EnergyMeter:  int64(b.energy),
		PowerStatus:  sdk.PowerOn,
		SOC:          uint8(math.Round(b.soc)),
		Runtime:      runtime,
		RSSI:         int16(-40 - rng.Intn(30)),
	}
}

func (b *battery) track(v1, v2, mah, mwh float64, t time.Time) {
	s := &b.stats
	f32 := func(v float64) float32 { return float32(v) }
	if !b.seen {
		b.seen = true
		s.Voltage1Min, s.Voltage1Max = f32(v1), f32(v1)
		s.Voltage2Min, s.Voltage2Max = f32(v2), f32(v2)
		s.TemperatureMin, s.TemperatureMax = f32(b.temperature), f32(b.temperature)
		b.fg.MinVoltage, b.fg.MaxVoltage = f32(v1), f32(v1)
	}
	s.SecondsSinceOn = uint32(t.Sub(b.started).Seconds())
	s.Voltage1Min = min(s.Voltage1Min, f32(v1))
	s.Voltage1Max = max(s.Voltage1Max, f32(v1))
	s.Voltage2Min = min(s.Voltage2Min, f32(v2))
	s.Voltage2Max = max(s.Voltage2Max, f32(v2))
	s.TemperatureMin = min(s.TemperatureMin, f32(b.temperature))
	s.TemperatureMax = max(s.TemperatureMax, f32(b.temperature))

	f := &b.fg
	f.MinVoltage = min(f.MinVoltage, f32(v1))
	f.MaxVoltage = max(f.MaxVoltage, f32(v1))
	if b.current > 0 {
		s.PeakChargeCurrent = max(s.PeakChargeCurrent, f32(b.current))
		f.MaxChargeCurrent = max(f.MaxChargeCurrent, f32(b.current))
		f.TotalCharge += uint64(mah)
		f.TotalChargeEnergy += uint64(mwh)
	} else {
		s.PeakDischargeCurrent = max(s.PeakDischargeCurrent, f32(-b.current))
		f.MaxDischargeCurrent = max(f.MaxDischargeCurrent, f32(-b.current))
		f.TotalDischarge += uint64(-mah)
		f.TotalDischargeEnergy += uint64(-mwh)
	}
	depth := f32((100 - b.soc) / 100 * capacityAh)
	f.LastDischarge = depth
	f.DeepestDischarge = max(f.DeepestDischarge, depth)
	if b.soc >= 100 {
		f.TimeSinceLastFullCharge = 0
	} else {
		f.TimeSinceLastFullCharge = s.SecondsSinceOn
	}
	f.SOC = f32(b.soc)
}

func (b *battery) statistics() sdk.MonitorStatistics { return b.stats }

func (b *battery) fuelgauge() sdk.FuelgaugeStatistics { return b.fg }
