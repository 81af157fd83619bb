package providers

import "math"

// KmhToMs converts a wind speed from km/h to m/s, rounded to two decimal
// places to match the precision the sources report.
func KmhToMs(kmh float64) float64 {
	return math.Round(kmh/3.6*100) / 100
}

// CmToMm converts a snow depth from centimeters to whole millimeters.
func CmToMm(cm float64) int {
	return int(math.Round(cm * 10))
}
