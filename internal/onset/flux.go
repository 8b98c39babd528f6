// SPDX-License-Identifier: MIT
package onset

import (
	"math"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

// fluxAverageAlpha matches the HFC detector: one EMA step per spectral
// frame, roughly a half-second window.
const fluxAverageAlpha = 0.05

// fluxDetector measures the half-wave rectified frame-to-frame
// increase in spectral magnitude over the configured bin range. Flux
// spikes on transients regardless of where in the spectrum they land,
// making it the most timbre-neutral strategy.
type fluxDetector struct {
	prev    [numBins]float64
	hasPrev bool
	current float64
	average float64
}

func (d *fluxDetector) reset() {
	*d = fluxDetector{}
}

func (d *fluxDetector) detect(f features, p *config.OnsetParams, dt float64) detection {
	if !f.spectralValid {
		return detection{}
	}

	maxBin := p.FluxBins
	if maxBin > len(f.mags) {
		maxBin = len(f.mags)
	}

	if !d.hasPrev {
		copy(d.prev[:], f.mags)
		d.hasPrev = true
		return detection{}
	}

	// Positive differences only: energy arriving, not leaving. Bin 0
	// is DC and skipped.
	var flux float64
	for i := 1; i < maxBin; i++ {
		if diff := f.mags[i] - d.prev[i]; diff > 0 {
			flux += diff
		}
	}
	if maxBin > 1 {
		flux /= float64(maxBin - 1)
	}
	copy(d.prev[:], f.mags)

	d.current = flux
	d.average += fluxAverageAlpha * (flux - d.average)

	threshold := p.FluxThresh * f.thresholdScale
	effective := math.Max(d.average*threshold, thresholdFloor)

	if flux <= effective {
		return detection{}
	}

	ratio := flux / math.Max(d.average, thresholdFloor)
	stability := 0.7
	if d.average > thresholdFloor {
		stability = clamp01(ratio / 4)
	}
	return detection{
		fired:      true,
		strength:   clamp01((ratio - threshold) / threshold),
		confidence: clamp01(0.5*clamp01((ratio-1)/3)+0.5*stability)*0.85 + 0.15,
	}
}
