// Package engine contains the renderer abstraction, the planar and globe
// renderers, the sidebar and overlay panels, and the ebiten application
// shell that ties them to the cache and filter packages.
package engine

import (
	"math"
)

const (
	// EarthRadius in meters.
	EarthRadius = 6371000.0

	// zoomAltitudeBase relates a web-mercator zoom level to a globe camera
	// altitude: altitude = (base / 2^zoom) * zoomAltitudeK. The base is the
	// equatorial circumference in meters; K is a visual calibration factor.
	zoomAltitudeBase = 40075016.686
	zoomAltitudeK    = 1.0

	// Calibration constants for marker sizing, in meters. Tuning parameters,
	// not invariants.
	diskRadiusScale   = 110000.0
	circleRadiusScale = 20000.0
	columnHeightUnit  = 100000.0
	erfAltitudeScale  = 3.0e6

	// ReferenceAltitude fixes the 2D aggregated-circle size so it does not
	// change with zoom.
	ReferenceAltitude = 8.0e6

	minZoom = 1.0
	maxZoom = 12.0
)

// Erf is the Gauss error function in the Abramowitz-Stegun 5-term rational
// approximation (7.1.26), max absolute error 1.5e-7.
func Erf(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}

// AltitudeFromZoom converts a planar zoom level to a globe camera altitude
// in meters.
func AltitudeFromZoom(zoom float64) float64 {
	return zoomAltitudeBase / math.Pow(2, zoom) * zoomAltitudeK
}

// ZoomFromAltitude is the algebraic inverse of AltitudeFromZoom.
func ZoomFromAltitude(alt float64) float64 {
	if alt <= 0 {
		return maxZoom
	}
	return math.Log2(zoomAltitudeBase * zoomAltitudeK / alt)
}

// DiskRadius returns the ground radius in meters of a location disk for the
// given item count as seen from altitude. The erf term compresses apparent
// size as the camera climbs so markers stay perceptually stable.
func DiskRadius(count int, altitude float64) float64 {
	return Erf(altitude/erfAltitudeScale) * math.Log(float64(count)+1.5) * diskRadiusScale
}

// ColumnRadius is the smaller footprint used for extruded columns.
func ColumnRadius(count int, altitude float64) float64 {
	return Erf(altitude/erfAltitudeScale) * math.Log(float64(count)+1.5) * circleRadiusScale
}

// ColumnHeight returns the extrusion height in meters for an item count,
// capped to stay below the camera.
func ColumnHeight(count int, altitude float64) float64 {
	h := columnHeightUnit * float64(count)
	if limit := altitude * 0.9; h > limit {
		h = limit
	}
	return h
}

func clampZoom(z float64) float64 {
	if z < minZoom {
		return minZoom
	}
	if z > maxZoom {
		return maxZoom
	}
	return z
}

func clampLat(lat float64) float64 {
	if lat > 85.0 {
		return 85.0
	}
	if lat < -85.0 {
		return -85.0
	}
	return lat
}

func wrapLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// mercator maps lat/lon to world coordinates in [0,1)x[0,1) at zoom 0.
func mercator(lat, lon float64) (x, y float64) {
	lat = clampLat(lat)
	x = (lon + 180) / 360
	latRad := lat * math.Pi / 180
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return x, y
}

// mercatorInverse maps world coordinates back to lat/lon.
func mercatorInverse(x, y float64) (lat, lon float64) {
	lon = x*360 - 180
	n := math.Pi - 2*math.Pi*y
	lat = 180 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return lat, lon
}

// metersPerWorldUnit returns meters per mercator world unit at the given
// latitude (the mercator stretch factor).
func metersPerWorldUnit(lat float64) float64 {
	return zoomAltitudeBase * math.Cos(clampLat(lat)*math.Pi/180)
}

// orthographic rotates a lat/lon point into the camera frame centered on
// (clat, clon) and returns unit-sphere coordinates: x east, y up on screen,
// z toward the viewer. Points with z < 0 are on the far side.
func orthographic(lat, lon, clat, clon float64) (x, y, z float64) {
	latR := lat * math.Pi / 180
	lonR := (lon - clon) * math.Pi / 180
	clatR := clat * math.Pi / 180

	x = math.Cos(latR) * math.Sin(lonR)
	y = math.Cos(clatR)*math.Sin(latR) - math.Sin(clatR)*math.Cos(latR)*math.Cos(lonR)
	z = math.Sin(clatR)*math.Sin(latR) + math.Cos(clatR)*math.Cos(latR)*math.Cos(lonR)
	return x, y, z
}
