// SPDX-License-Identifier: MIT
package onset

import "github.com/Jdubz/blinky-time-sub007/internal/config"

// hybridDetector fuses the drummer and spectral flux strategies. The
// two fail differently: drummer misses low-contrast hits in dense
// mixes, flux false-fires on non-percussive spectral movement. When
// both agree the onset is almost certainly real and the strength is
// boosted; a single-strategy fire is admitted at reduced weight.
type hybridDetector struct {
	drum drummerDetector
	flux fluxDetector
}

func (d *hybridDetector) reset() {
	d.drum.reset()
	d.flux.reset()
}

func (d *hybridDetector) detect(f features, p *config.OnsetParams, dt float64) detection {
	dd := d.drum.detect(f, p, dt)
	fd := d.flux.detect(f, p, dt)

	switch {
	case dd.fired && fd.fired:
		s := dd.strength
		if fd.strength > s {
			s = fd.strength
		}
		c := 0.5 * (dd.confidence + fd.confidence)
		return detection{
			fired:      true,
			strength:   clamp01(s * p.HybridBothBoost),
			confidence: clamp01(c * p.HybridBothBoost),
		}
	case dd.fired:
		return detection{
			fired:      true,
			strength:   clamp01(dd.strength * p.HybridDrumWeight),
			confidence: clamp01(dd.confidence * p.HybridDrumWeight),
		}
	case fd.fired:
		return detection{
			fired:      true,
			strength:   clamp01(fd.strength * p.HybridFluxWeight),
			confidence: clamp01(fd.confidence * p.HybridFluxWeight),
		}
	default:
		return detection{}
	}
}
