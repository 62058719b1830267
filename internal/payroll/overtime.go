package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkedDay is one worker's summed hours for one calendar day, valued at the
// hourly rate snapshotted on that day's entries.
type WorkedDay struct {
	Date  time.Time
	Hours float64
	Rate  float64
}

// DaySplit is a worked day after overtime classification.
type DaySplit struct {
	Date          time.Time
	RegularHours  float64
	OvertimeHours float64
	Rate          float64
}

// SplitOvertime classifies a worker's hours into regular and overtime in two
// sequential passes over days ordered by date:
//
//  1. daily pass: hours above the daily threshold on any single day are
//     overtime. A zero threshold means the jurisdiction has no daily rule.
//  2. weekly pass: within each week, regular hours accumulated past the
//     weekly threshold are re-flagged as overtime. Hours already flagged by
//     the daily pass do not count toward the weekly accumulator, so the two
//     rules never double-count the same hour.
//
// A zero weekly threshold disables the second pass.
func SplitOvertime(days []WorkedDay, dailyThreshold, weeklyThreshold float64) []DaySplit {
	splits := make([]DaySplit, len(days))
	for i, day := range days {
		split := DaySplit{Date: day.Date, RegularHours: day.Hours, Rate: day.Rate}
		if dailyThreshold > 0 && day.Hours > dailyThreshold {
			split.OvertimeHours = day.Hours - dailyThreshold
			split.RegularHours = dailyThreshold
		}
		splits[i] = split
	}

	if weeklyThreshold <= 0 {
		return splits
	}

	weekRegular := 0.0
	var currentWeek time.Time
	for i := range splits {
		week := weekStart(splits[i].Date)
		if !week.Equal(currentWeek) {
			currentWeek = week
			weekRegular = 0
		}

		weekRegular += splits[i].RegularHours
		if weekRegular > weeklyThreshold {
			excess := weekRegular - weeklyThreshold
			if excess > splits[i].RegularHours {
				excess = splits[i].RegularHours
			}
			splits[i].RegularHours -= excess
			splits[i].OvertimeHours += excess
			weekRegular = weeklyThreshold
		}
	}

	return splits
}

// weekStart truncates a date to its Monday.
func weekStart(date time.Time) time.Time {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// OvertimePremiumCents values the overtime hours of a split at each day's
// rate times the premium portion of the multiplier. The base hour is already
// paid inside the entry amount; only the extra half (for a 1.5x rule) is
// added here.
func OvertimePremiumCents(splits []DaySplit, multiplier float64) int64 {
	if multiplier <= 1 {
		return 0
	}
	premium := decimal.NewFromFloat(multiplier - 1)
	total := decimal.Zero
	for _, split := range splits {
		if split.OvertimeHours <= 0 {
			continue
		}
		total = total.Add(
			decimal.NewFromFloat(split.OvertimeHours).
				Mul(decimal.NewFromFloat(split.Rate)).
				Mul(premium).
				Mul(decimal.NewFromInt(100)))
	}
	return total.Round(0).IntPart()
}

// TotalHours sums the classified hours across a split.
func TotalHours(splits []DaySplit) (regular, overtime float64) {
	for _, split := range splits {
		regular += split.RegularHours
		overtime += split.OvertimeHours
	}
	return regular, overtime
}
