package types

import "time"

// ActivityTypeRun is the only upstream activity type the pipeline persists.
const ActivityTypeRun = "Run"

// LatLng is a geographic coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ActivitySummary is one element of the upstream activity listing, newest
// first.
type ActivitySummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	SportType string    `json:"sport_type"`
	StartDate time.Time `json:"start_date"`
}

// IsRun reports whether the summary passes the activity type filter.
func (s ActivitySummary) IsRun() bool {
	return s.Type == ActivityTypeRun
}

// ActivityDetail is the full upstream record for one activity, validated at
// the parsing boundary. StartDateLocal carries the athlete's wall clock
// tagged as UTC, which is how the upstream API reports it.
type ActivityDetail struct {
	ID                 int64
	Name               string
	Type               string
	SportType          string
	StartDate          time.Time
	StartDateLocal     time.Time
	Timezone           string
	DistanceMeters     float64
	ElapsedTime        int
	MovingTime         int
	AverageSpeed       float64
	MaxSpeed           float64
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	AverageCadence     *float64
	TotalElevationGain float64
	Calories           *float64
	SufferScore        *int
	GearID             *string
	DeviceName         *string
	SummaryPolyline    *string
	StartLatLng        *LatLng
	Splits             []Split
	BestEfforts        []BestEffort
}

// HasLocation reports whether the activity recorded a start coordinate.
func (d *ActivityDetail) HasLocation() bool {
	return d.StartLatLng != nil
}

// SyncDay returns the activity's local calendar day as a UTC midnight instant.
func (d *ActivityDetail) SyncDay() time.Time {
	local := d.StartDateLocal
	if local.IsZero() {
		local = d.StartDate
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Activity is the persisted row for one run. It is written once and never
// updated in place.
type Activity struct {
	ID                 int64     `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Type               string    `json:"type" db:"activity_type"`
	StartDate          time.Time `json:"start_date" db:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local" db:"start_date_local"`
	SyncDay            time.Time `json:"sync_day" db:"sync_day"`
	Timezone           string    `json:"timezone,omitempty" db:"timezone"`
	DistanceKm         float64   `json:"distance_km" db:"distance_km"`
	ElapsedTime        int       `json:"elapsed_time" db:"elapsed_time"`
	MovingTime         int       `json:"moving_time" db:"moving_time"`
	AverageSpeed       float64   `json:"average_speed" db:"average_speed"`
	MaxSpeed           float64   `json:"max_speed" db:"max_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate,omitempty" db:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate,omitempty" db:"max_heartrate"`
	AverageCadence     *float64  `json:"average_cadence,omitempty" db:"average_cadence"`
	TotalElevationGain float64   `json:"total_elevation_gain" db:"total_elevation_gain"`
	Calories           *float64  `json:"calories,omitempty" db:"calories"`
	SufferScore        *int      `json:"suffer_score,omitempty" db:"suffer_score"`
	GearID             *string   `json:"gear_id,omitempty" db:"gear_id"`
	DeviceName         *string   `json:"device_name,omitempty" db:"device_name"`
	SummaryPolyline    *string   `json:"summary_polyline,omitempty" db:"map_summary_polyline"`
	StartLatitude      *float64  `json:"start_latitude,omitempty" db:"start_latitude"`
	StartLongitude     *float64  `json:"start_longitude,omitempty" db:"start_longitude"`

	Enrichment Enrichment `json:"enrichment"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Hydrated from child tables on detail reads.
	Splits      []Split      `json:"splits,omitempty" db:"-"`
	BestEfforts []BestEffort `json:"best_efforts,omitempty" db:"-"`
}

// PaceMinPerKm returns the average pace in minutes per kilometer, or zero
// when the activity has no distance.
func (a *Activity) PaceMinPerKm() float64 {
	if a.DistanceKm <= 0 {
		return 0
	}
	return float64(a.MovingTime) / 60 / a.DistanceKm
}

// Enrichment holds the weather, air quality and place fields attached to an
// activity at ingestion time. Every field is independently nullable.
type Enrichment struct {
	Temperature        *float64 `json:"temperature,omitempty" db:"temperature"`
	FeelsLike          *float64 `json:"feels_like,omitempty" db:"feels_like"`
	Humidity           *float64 `json:"humidity,omitempty" db:"humidity"`
	WeatherDescription *string  `json:"weather_description,omitempty" db:"weather_conditions"`
	AQI                *int     `json:"aqi,omitempty" db:"pollution_aqi"`
	CO                 *float64 `json:"co,omitempty" db:"pollution_co"`
	NO                 *float64 `json:"no,omitempty" db:"pollution_no"`
	NO2                *float64 `json:"no2,omitempty" db:"pollution_no2"`
	O3                 *float64 `json:"o3,omitempty" db:"pollution_o3"`
	SO2                *float64 `json:"so2,omitempty" db:"pollution_so2"`
	PM25               *float64 `json:"pm2_5,omitempty" db:"pollution_pm2_5"`
	PM10               *float64 `json:"pm10,omitempty" db:"pollution_pm10"`
	NH3                *float64 `json:"nh3,omitempty" db:"pollution_nh3"`
	CityName           *string  `json:"city_name,omitempty" db:"city_name"`
}

// IsEmpty reports whether no enrichment field is populated.
func (e Enrichment) IsEmpty() bool {
	return e == Enrichment{}
}

// Split is one fixed-distance segment of an activity.
type Split struct {
	ActivityID                int64    `json:"activity_id" db:"activity_id"`
	SplitNumber               int      `json:"split" db:"split_number"`
	Distance                  float64  `json:"distance" db:"distance"`
	ElapsedTime               int      `json:"elapsed_time" db:"elapsed_time"`
	MovingTime                int      `json:"moving_time" db:"moving_time"`
	AverageSpeed              float64  `json:"average_speed" db:"average_speed"`
	AverageHeartrate          *float64 `json:"average_heartrate,omitempty" db:"average_heartrate"`
	ElevationDifference       *float64 `json:"elevation_difference,omitempty" db:"elevation_difference"`
	AverageGradeAdjustedSpeed *float64 `json:"average_grade_adjusted_speed,omitempty" db:"average_grade_adjusted_speed"`
}

// BestEffort is a provider-computed best time over a named distance within
// an activity.
type BestEffort struct {
	ActivityID  int64     `json:"activity_id" db:"activity_id"`
	Name        string    `json:"name" db:"name"`
	Distance    float64   `json:"distance" db:"distance"`
	ElapsedTime int       `json:"elapsed_time" db:"elapsed_time"`
	StartDate   time.Time `json:"start_date" db:"start_date"`
}

// WeatherSnapshot is the historical weather at a single instant.
type WeatherSnapshot struct {
	Time        time.Time
	Temperature float64
	FeelsLike   float64
	Humidity    float64
	Description string
}

// PollutantComponents are concentrations in μg/m3.
type PollutantComponents struct {
	CO   float64 `json:"co"`
	NO   float64 `json:"no"`
	NO2  float64 `json:"no2"`
	O3   float64 `json:"o3"`
	SO2  float64 `json:"so2"`
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	NH3  float64 `json:"nh3"`
}

// PollutionSample is one hourly air-quality observation.
type PollutionSample struct {
	Time       time.Time
	AQI        int
	Components PollutantComponents
}

// EnrichmentResult is the per-activity output of the enrichment step. Each
// facet is nil when its upstream call failed or returned nothing.
type EnrichmentResult struct {
	Weather   *WeatherSnapshot
	Pollution []PollutionSample
	CityName  *string
}

// RateLimitQuota is the upstream's short-window and daily request budget as
// last reported in response headers.
type RateLimitQuota struct {
	ShortLimit int
	ShortUsage int
	DailyLimit int
	DailyUsage int
}

// Remaining returns the smaller of the two windows' remaining requests.
func (q RateLimitQuota) Remaining() int {
	short := q.ShortLimit - q.ShortUsage
	if q.DailyLimit == 0 {
		return short
	}
	return min(short, q.DailyLimit-q.DailyUsage)
}

// OAuthToken is a persisted access/refresh token pair.
type OAuthToken struct {
	Provider     string
	AccessToken  SecretString
	RefreshToken SecretString
	Expiry       time.Time
	UpdatedAt    time.Time
}

// Goal is the athlete's free-text training goal.
type Goal struct {
	ID        int64     `json:"id"`
	Narrative string    `json:"goal"`
	CreatedAt time.Time `json:"created_at"`
}
