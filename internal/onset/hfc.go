// SPDX-License-Identifier: MIT
package onset

import (
	"math"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

const (
	// hfcMinBin is 2 kHz at 62.5 Hz per bin: below that, kick and bass
	// energy would dominate the weighted sum.
	hfcMinBin = 32
	// hfcAverageAlpha is the fixed EMA rate for the running average at
	// one update per spectral frame.
	hfcAverageAlpha = 0.05
	// hfcSustainRejectFrames rejects cymbal wash and sibilance: HFC
	// elevated for this many consecutive frames is sustained content,
	// not an attack.
	hfcSustainRejectFrames = 10
)

// hfcDetector weights spectral magnitude by bin index raised to the
// configured exponent, favoring sharp broadband attacks (snares,
// claps) over low-frequency kicks.
type hfcDetector struct {
	current  float64
	prev     float64
	average  float64
	elevated int
}

func (d *hfcDetector) reset() {
	*d = hfcDetector{}
}

func (d *hfcDetector) detect(f features, p *config.OnsetParams, dt float64) detection {
	if !f.spectralValid {
		return detection{}
	}

	d.prev = d.current
	d.current = weightedHFC(f.mags, p.HFCWeight)
	d.average += hfcAverageAlpha * (d.current - d.average)

	// Consecutive elevated frames indicate sustained high-frequency
	// content. Guard against the cold average at startup, where any
	// signal would look elevated.
	if d.average > thresholdFloor && d.current > d.average*1.5 {
		d.elevated++
	} else {
		d.elevated = 0
	}

	threshold := p.HFCThresh * f.thresholdScale
	effective := math.Max(d.average*threshold, thresholdFloor)

	loud := d.current > effective
	rising := d.current > d.prev*p.AttackMultiplier
	transient := d.elevated < hfcSustainRejectFrames

	if !(loud && rising && transient) {
		return detection{}
	}

	ratio := d.current / math.Max(d.average, thresholdFloor)
	attackRatio := 2.0
	if d.prev > thresholdFloor {
		attackRatio = d.current / d.prev
	}
	conf := 0.5*clamp01((ratio-1)/4) + 0.5*clamp01((attackRatio-1)/2)
	return detection{
		fired:      true,
		strength:   clamp01((ratio - threshold) / threshold),
		confidence: clamp01(conf)*0.8 + 0.1,
	}
}

// weightedHFC sums magnitude weighted by bin^exponent over the upper
// spectrum, normalized by the total weight so the value is comparable
// across exponents.
func weightedHFC(mags []float64, exponent float64) float64 {
	var sum, weightSum float64
	for i := hfcMinBin; i < len(mags); i++ {
		w := math.Pow(float64(i), exponent)
		sum += mags[i] * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}
