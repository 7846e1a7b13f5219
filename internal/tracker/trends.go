package tracker

import (
	"fmt"
	"sort"
	"strconv"
)

// Resolution selects the trend bucketing granularity.
type Resolution string

const (
	ResolutionDaily   Resolution = "daily"
	ResolutionWeekly  Resolution = "weekly"
	ResolutionMonthly Resolution = "monthly"
)

// Default window sizes: how many most-recent buckets each resolution
// reports.
const (
	dailyWindow   = 7
	weeklyWindow  = 4
	monthlyWindow = 6
)

// ParseResolution validates a resolution string from the API.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case ResolutionDaily, ResolutionWeekly, ResolutionMonthly:
		return Resolution(s), nil
	}
	return "", fmt.Errorf("invalid resolution %q (want daily, weekly, or monthly)", s)
}

// TrendBucket is one rollup bucket: the bucket key (calendar date,
// week number, or month number), a human-readable period label, and
// the summed CO2e of every entry that falls in the bucket.
type TrendBucket struct {
	Bucket   string  `json:"bucket"`
	Period   string  `json:"period"`
	TotalCO2 float64 `json:"total_co2"`
}

func (r Resolution) window() int {
	switch r {
	case ResolutionWeekly:
		return weeklyWindow
	case ResolutionMonthly:
		return monthlyWindow
	default:
		return dailyWindow
	}
}

// key returns the sortable grouping key, the exposed bucket key, and
// the period label for one entry. Weekly and monthly grouping includes
// the year so that, say, week 1 of two different years stays two
// buckets; the exposed bucket key remains the bare week or month
// number and the label carries the year.
func (r Resolution) key(entry *Entry) (sortKey, bucket, period string) {
	switch r {
	case ResolutionWeekly:
		year, week := entry.Date.ISOWeek()
		sortKey = fmt.Sprintf("%04d-%02d", year, week)
		return sortKey, strconv.Itoa(week), fmt.Sprintf("%d-W%02d", year, week)
	case ResolutionMonthly:
		year, month := entry.Date.Year(), entry.Date.Month()
		sortKey = fmt.Sprintf("%04d-%02d", year, int(month))
		return sortKey, strconv.Itoa(int(month)), entry.Date.Format("January 2006")
	default:
		date := entry.Date.Format("2006-01-02")
		return date, date, entry.Date.Format("January 2, 2006")
	}
}

// aggregate rolls a user's entries up into trend buckets at the given
// resolution: entries sharing a bucket key are summed, buckets come
// back most recent first, and at most the resolution's window size is
// returned. No entries means no buckets, not an error.
func aggregate(entries []*Entry, resolution Resolution) []TrendBucket {
	totals := make(map[string]*TrendBucket)
	for _, entry := range entries {
		sortKey, bucket, period := resolution.key(entry)
		if existing, ok := totals[sortKey]; ok {
			existing.TotalCO2 += entry.TotalCO2
			continue
		}
		totals[sortKey] = &TrendBucket{
			Bucket:   bucket,
			Period:   period,
			TotalCO2: entry.TotalCO2,
		}
	}

	sortKeys := make([]string, 0, len(totals))
	for key := range totals {
		sortKeys = append(sortKeys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sortKeys)))

	if window := resolution.window(); len(sortKeys) > window {
		sortKeys = sortKeys[:window]
	}

	buckets := make([]TrendBucket, 0, len(sortKeys))
	for _, key := range sortKeys {
		buckets = append(buckets, *totals[key])
	}
	return buckets
}
