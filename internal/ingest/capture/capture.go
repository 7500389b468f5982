// Package capture infers the calendar day a file was captured, used to pick
// its destination bucket.
//
// Resolution order: EXIF DateTimeOriginal, filesystem birth time, modification
// time. The mtime fallback can misfile a file edited long after capture; that
// behavior is deliberate, since anything better depends on metadata the source
// filesystem may not have.
package capture

import (
	"os"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
	"golang.org/x/sys/unix"
)

// exifTimeLayout is the timestamp format EXIF mandates.
const exifTimeLayout = "2006:01:02 15:04:05"

// Date returns the inferred capture time of the file at path. It only fails
// when the file cannot be stat'ed at all.
func Date(path string) (time.Time, error) {
	if t, ok := exifTime(path); ok {
		return t, nil
	}
	if t, ok := birthTime(path); ok {
		return t, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Bucket returns the destination directory name for a capture time.
func Bucket(t time.Time) string {
	return t.Format("2006-01-02")
}

func exifTime(path string) (time.Time, bool) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer file.Close()

	x, err := goexif.Decode(file)
	if err != nil {
		return time.Time{}, false
	}

	if tag, err := x.Get(goexif.DateTimeOriginal); err == nil {
		if str, err := tag.StringVal(); err == nil {
			if parsed, err := time.ParseInLocation(exifTimeLayout, str, time.Local); err == nil {
				return parsed, true
			}
		}
	}
	if parsed, err := x.DateTime(); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

func birthTime(path string) (time.Time, bool) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return time.Time{}, false
	}
	if stx.Mask&unix.STATX_BTIME == 0 || (stx.Btime.Sec == 0 && stx.Btime.Nsec == 0) {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}
