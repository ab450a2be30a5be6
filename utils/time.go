package utils

import (
	"time"
)

// DayKey 按 UTC 日期生成计数器 key 片段，格式 20060102
func DayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

// UntilEndOfDay 距离 UTC 当日结束的时长，作为日计数器的过期时间
func UntilEndOfDay(t time.Time) time.Duration {
	t = t.UTC()
	end := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	return end.Sub(t)
}
