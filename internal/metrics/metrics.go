// Package metrics derives productivity figures from activity rows. Snapshots
// are recomputed on demand and carry no identity of their own; nothing in the
// pipeline depends on a stored snapshot being current.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/terraferm/fieldops/internal/config"
	"github.com/terraferm/fieldops/internal/store"
)

type DayMetrics struct {
	Date            string  `json:"date"`
	CladodesPlanted int     `json:"cladodes_planted"`
	Workers         int     `json:"workers"`
	Hours           float64 `json:"hours"`
	ActivitiesCount int     `json:"activities_count"`
}

type Totals struct {
	CladodesPlanted    int     `json:"total_planted"`
	WorkerHours        float64 `json:"total_worker_hours"`
	Activities         int     `json:"total_activities"`
	EstimatedLaborCost float64 `json:"estimated_labor_cost"`
}

type Averages struct {
	DailyPlanting         float64 `json:"daily_planting"`
	ProductivityPerWorker float64 `json:"productivity_per_worker"`
	HoursPerDay           float64 `json:"hours_per_day"`
}

type Trend struct {
	ChangePercent float64 `json:"planting_rate_change_percent"`
	Direction     string  `json:"direction"`
}

type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// FarmSummary holds the dashboard-level figures the alert rules evaluate.
type FarmSummary struct {
	TotalCladodes  int     `json:"total_cladodes"`
	TotalStations  int     `json:"total_stations"`
	AvgStackHeight float64 `json:"avg_stack_height"`
	AvgDailyRate   float64 `json:"avg_daily_rate"`
	AreaPlantedHa  float64 `json:"area_planted_ha"`
	PlantingDays   int     `json:"planting_days"`
}

type Snapshot struct {
	Period   Period       `json:"period"`
	Daily    []DayMetrics `json:"daily_breakdown"`
	Totals   Totals       `json:"totals"`
	Averages Averages     `json:"averages"`
	Trend    Trend        `json:"trends"`
	Farm     FarmSummary  `json:"farm"`
}

// Compute aggregates activity rows into a snapshot. Pure: no I/O, no clock.
// Quantities missing on a row count as zero; missing hours default to the
// configured workday when computing worker-hours.
func Compute(activities []store.Activity, start, end time.Time, t config.Targets) Snapshot {
	buckets := make(map[string]*DayMetrics)
	for _, a := range activities {
		date := a.Date.Format("2006-01-02")
		day, ok := buckets[date]
		if !ok {
			day = &DayMetrics{Date: date}
			buckets[date] = day
		}
		if a.Kind == "planting" {
			day.CladodesPlanted += intOrZero(a.CladodesPlanted)
			day.Workers += intOrZero(a.Workers)
			day.Hours += floatOrZero(a.HoursWorked)
		}
		day.ActivitiesCount++
	}

	daily := make([]DayMetrics, 0, len(buckets))
	for _, d := range buckets {
		daily = append(daily, *d)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })

	var totals Totals
	for _, d := range daily {
		totals.CladodesPlanted += d.CladodesPlanted
		hours := d.Hours
		if hours == 0 {
			hours = t.WorkdayHours
		}
		totals.WorkerHours += float64(d.Workers) * hours
		totals.Activities += d.ActivitiesCount
	}
	totals.EstimatedLaborCost = math.Round(totals.WorkerHours*t.HourlyLaborRate*100) / 100

	daysWithPlanting := 0
	workerDays := 0
	for _, d := range daily {
		if d.CladodesPlanted > 0 {
			daysWithPlanting++
		}
		workerDays += d.Workers
	}

	var avg Averages
	if daysWithPlanting > 0 {
		avg.DailyPlanting = math.Round(float64(totals.CladodesPlanted) / float64(daysWithPlanting))
		avg.HoursPerDay = math.Round(totals.WorkerHours / float64(daysWithPlanting))
	}
	if workerDays > 0 {
		avg.ProductivityPerWorker = math.Round(float64(totals.CladodesPlanted) / float64(workerDays))
	}

	return Snapshot{
		Period: Period{
			Start: start.Format("2006-01-02"),
			End:   end.Format("2006-01-02"),
			Days:  len(daily),
		},
		Daily:    daily,
		Totals:   totals,
		Averages: avg,
		Trend:    computeTrend(daily),
		Farm:     farmSummary(activities, avg.DailyPlanting, t),
	}
}

// computeTrend splits the day sequence at its midpoint and compares half
// means. A zero first-half mean yields a flat trend.
func computeTrend(daily []DayMetrics) Trend {
	mid := len(daily) / 2
	firstMean := meanPlanted(daily[:mid])
	secondMean := meanPlanted(daily[mid:])

	var pct float64
	if firstMean > 0 {
		pct = math.Round((secondMean - firstMean) / firstMean * 100)
	}
	dir := "up"
	if pct < 0 {
		dir = "down"
	}
	return Trend{ChangePercent: pct, Direction: dir}
}

func meanPlanted(days []DayMetrics) float64 {
	if len(days) == 0 {
		return 0
	}
	sum := 0
	for _, d := range days {
		sum += d.CladodesPlanted
	}
	return float64(sum) / float64(len(days))
}

// farmSummary derives stack height and the area estimate. Area comes from
// recorded station counts when present, else from units ÷ stack height; with
// neither available it stays 0.
func farmSummary(activities []store.Activity, avgDailyRate float64, t config.Targets) FarmSummary {
	var sum FarmSummary
	sum.AvgDailyRate = avgDailyRate

	var stackSum float64
	var stackN int
	for _, a := range activities {
		planted := intOrZero(a.CladodesPlanted)
		stations := intOrZero(a.StationsPlanted)
		if planted == 0 && stations == 0 {
			continue
		}
		sum.TotalCladodes += planted
		sum.TotalStations += stations
		sum.PlantingDays++
		if v := floatOrZero(a.AvgCladodesPerStation); v > 0 {
			stackSum += v
			stackN++
		}
	}

	switch {
	case stackN > 0:
		sum.AvgStackHeight = stackSum / float64(stackN)
	case sum.TotalStations > 0:
		sum.AvgStackHeight = float64(sum.TotalCladodes) / float64(sum.TotalStations)
	}

	switch {
	case sum.TotalStations > 0:
		sum.AreaPlantedHa = float64(sum.TotalStations) / t.StationsPerHa
	case sum.TotalCladodes > 0 && sum.AvgStackHeight > 0:
		estimatedStations := float64(sum.TotalCladodes) / sum.AvgStackHeight
		sum.AreaPlantedHa = estimatedStations / t.StationsPerHa
	}
	sum.AreaPlantedHa = math.Round(sum.AreaPlantedHa*100) / 100

	return sum
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
