package registry

import "github.com/agrosense/irrigation-coordinator/internal/model"

// Two deliberately distinct water-accounting policies. Manual, scheduled and
// emergency stops are metered from elapsed time through a fixed flow rate;
// smart sessions are booked at the volume the decision recommended. The two
// are not meant to reconcile.

const (
	defaultFlowRateLPM = 10.0
	// Traditional irrigation is assumed to use 30% more water.
	traditionalFactor = 1.3
	smartSavingFactor = 0.3
)

// flowRateWaterPolicy meters usage as minutes x flow rate and savings
// against the traditional baseline.
func flowRateWaterPolicy(actualMinutes int, flowRateLPM float64) (used, saved int) {
	used = int(float64(actualMinutes)*flowRateLPM + 0.5)
	traditional := float64(used) * traditionalFactor
	saved = int(traditional - float64(used) + 0.5)
	return used, saved
}

// decisionVolumeWaterPolicy books the decision's recommended volume and a
// fixed saving fraction of it.
func decisionVolumeWaterPolicy(d *model.Decision) (used, saved int) {
	used = d.RecommendedWaterVolume
	saved = int(float64(used)*smartSavingFactor + 0.5)
	return used, saved
}
