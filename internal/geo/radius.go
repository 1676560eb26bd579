package geo

import (
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"tour-booking-api/internal/core/apperr"
)

// 地球半径
const (
	EarthRadiusMi = 3963.2
	EarthRadiusKm = 6378.1
)

// Sphere 以 (lng, lat) 为圆心、弧度为半径的球面范围
type Sphere struct {
	Lng    float64
	Lat    float64
	Radius float64 // radians
}

// Within 把 "lat,lng" + 距离 + 单位换算成球面范围；单位非 mi 一律按公里
func Within(distance float64, latlng, unit string) (Sphere, error) {
	var latS, lngS string
	if parts := strings.SplitN(latlng, ",", 2); len(parts) == 2 {
		latS, lngS = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	if latS == "" || lngS == "" {
		return Sphere{}, apperr.BadRequest("Please provide latitude and longitude in the format lat,lng.")
	}
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil || !finite(lat) || lat < -90 || lat > 90 {
		return Sphere{}, apperr.BadRequest("Invalid latitude: " + latS)
	}
	lng, err := strconv.ParseFloat(lngS, 64)
	if err != nil || !finite(lng) || lng < -180 || lng > 180 {
		return Sphere{}, apperr.BadRequest("Invalid longitude: " + lngS)
	}
	if !finite(distance) {
		return Sphere{}, apperr.BadRequest("Distance must be a finite number")
	}
	if distance < 0 {
		return Sphere{}, apperr.BadRequest("Distance must not be negative")
	}
	r := EarthRadiusKm
	if unit == "mi" {
		r = EarthRadiusMi
	}
	return Sphere{Lng: lng, Lat: lat, Radius: distance / r}, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Filter 存储端的 $geoWithin/$centerSphere 谓词，坐标经度在前
func (s Sphere) Filter(field string) bson.M {
	return bson.M{
		field: bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": bson.A{bson.A{s.Lng, s.Lat}, s.Radius},
			},
		},
	}
}
