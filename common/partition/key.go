// Package partition derives storage object keys for shipped batches.
package partition

import (
	"fmt"
	"time"
)

// ObjectSuffix is appended to keys by object stores that persist batches
// as JSON Lines files.
const ObjectSuffix = ".jsonl"

// Derive returns the time-bucketed key for a batch:
//
//	logs/<YYYY>/<MM>/<DD>/<deviceID>_logs<YYYYMMDD_HHMMSS>
//
// The timestamp's own wall clock is used without zone conversion, so the
// result depends only on the arguments. Two batches from one device in
// the same second share a key.
func Derive(deviceID string, ts time.Time) string {
	return fmt.Sprintf("logs/%04d/%02d/%02d/%s_logs%s",
		ts.Year(), int(ts.Month()), ts.Day(),
		deviceID, ts.Format("20060102_150405"))
}

// ObjectKey returns Derive(deviceID, ts) with ObjectSuffix.
func ObjectKey(deviceID string, ts time.Time) string {
	return Derive(deviceID, ts) + ObjectSuffix
}
