package service

import "time"

// WindowDuration is the fixed length of one accounting window.
const WindowDuration = 30 * time.Minute

// WindowStart returns the start of the 30-minute accounting window containing
// t. The boundary is computed on the wall clock in loc (floor minutes to a
// multiple of 30) and returned as an absolute instant. Windows are half-open
// [start, end): a timestamp exactly on a boundary belongs to the window that
// begins there.
func WindowStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	minute := local.Minute() - local.Minute()%30
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, loc)
}

// WindowEnd returns start + 30 minutes.
func WindowEnd(start time.Time) time.Time {
	return start.Add(WindowDuration)
}
