package collector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Subdirectory layouts of rotated files.
const (
	LayoutNone = iota
	LayoutYearMonthDay
	LayoutYearMonthDayHour
	LayoutYearWeekWeekday
	LayoutYearSundayWeekWeekday
	LayoutDate
	LayoutDateHour
	maxLayout
)

var layoutFormats = [maxLayout]string{
	LayoutNone:                  "",
	LayoutYearMonthDay:          "%Y/%m/%d",
	LayoutYearMonthDayHour:      "%Y/%m/%d/%H",
	LayoutYearWeekWeekday:       "%Y/%W/%u",
	LayoutYearSundayWeekWeekday: "%Y/%U/%w",
	LayoutDate:                  "%Y-%m-%d",
	LayoutDateHour:              "%Y-%m-%d/%H",
}

// ValidLayout reports whether layout is a known subdirectory layout.
func ValidLayout(layout int) bool {
	return layout >= LayoutNone && layout < maxLayout
}

// LayoutFormat describes a layout in strftime notation.
func LayoutFormat(layout int) string {
	if !ValidLayout(layout) {
		return ""
	}
	return layoutFormats[layout]
}

// SubdirPath returns the relative directory of a file whose slot starts at t.
func SubdirPath(layout int, t time.Time) (string, error) {
	yday := t.YearDay() - 1
	wday := int(t.Weekday())
	// weeks starting on Monday and on Sunday, as strftime %W and %U
	mondayWeek := (yday + 7 - (wday+6)%7) / 7
	sundayWeek := (yday + 7 - wday) / 7
	isoWeekday := wday
	if isoWeekday == 0 {
		isoWeekday = 7
	}

	switch layout {
	case LayoutNone:
		return "", nil
	case LayoutYearMonthDay:
		return t.Format("2006/01/02"), nil
	case LayoutYearMonthDayHour:
		return t.Format("2006/01/02/15"), nil
	case LayoutYearWeekWeekday:
		return fmt.Sprintf("%04d/%02d/%d", t.Year(), mondayWeek, isoWeekday), nil
	case LayoutYearSundayWeekWeekday:
		return fmt.Sprintf("%04d/%02d/%d", t.Year(), sundayWeek, wday), nil
	case LayoutDate:
		return t.Format("2006-01-02"), nil
	case LayoutDateHour:
		return t.Format("2006-01-02/15"), nil
	default:
		return "", fmt.Errorf("unknown subdirectory layout %d", layout)
	}
}

// RotatedName returns the file name of the slot starting at t. Seconds are
// included for intervals below one minute.
func RotatedName(t time.Time, interval time.Duration) string {
	if interval < time.Minute {
		return "nfcapd." + t.Format("20060102150405")
	}
	return "nfcapd." + t.Format("200601021504")
}

// SlotStart aligns t to the start of its rotation slot.
func SlotStart(t time.Time, interval time.Duration) time.Time {
	secs := int64(interval / time.Second)
	if secs <= 0 {
		return t
	}
	unix := t.Unix()
	return time.Unix(unix-unix%secs, 0).In(t.Location())
}

// rotatedPath builds the destination of a source's current file. A failing
// subdirectory falls back to the data directory.
func rotatedPath(fs *FlowSource, layout int, tStart time.Time, interval time.Duration, logger *slog.Logger) string {
	name := RotatedName(tStart, interval)
	subdir, err := SubdirPath(layout, tStart)
	if err != nil {
		logger.Error("failed to create subdir path", slog.String("error", err.Error()))
		return filepath.Join(fs.DataDir, name)
	}
	if subdir == "" {
		return filepath.Join(fs.DataDir, name)
	}
	dir := filepath.Join(fs.DataDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("failed to create sub hier directories",
			slog.String("ident", fs.Ident),
			slog.String("error", err.Error()))
		return filepath.Join(fs.DataDir, name)
	}
	return filepath.Join(dir, name)
}

// renameFile moves a closed file into place and syncs the directory.
func renameFile(from, to string, logger *slog.Logger) error {
	if err := os.Rename(from, to); err != nil {
		return err
	}
	if err := syncDir(filepath.Dir(to)); err != nil {
		logger.Warn("error syncing data directory", slog.String("error", err.Error()))
	}
	return nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = dir.Close()
	}()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
