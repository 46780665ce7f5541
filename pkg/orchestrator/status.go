package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// statusFile is the on-disk liveness record. Operators and sibling
// tooling read it to tell a running daemon from a crashed one, and the
// booting process reads it to decide whether an online announcement is
// warranted or would just be heartbeat noise after a quick restart.
type statusFile struct {
	Online       bool      `json:"online"`
	TimestampUTC time.Time `json:"timestamp_utc"`
	Status       string    `json:"status"`
}

// readStatus loads the previous status record. A missing file returns
// (nil, nil); a corrupt one returns the unmarshal error.
func readStatus(path string) (*statusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading status file: %w", err)
	}
	var sf statusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing status file: %w", err)
	}
	return &sf, nil
}

// writeStatus atomically replaces the status record via a temp file and
// rename, so readers never observe a partial write.
func writeStatus(path string, online bool, status string, now time.Time) error {
	sf := statusFile{
		Online:       online,
		TimestampUTC: now.UTC(),
		Status:       status,
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing status file: %w", err)
	}
	return nil
}

// shouldAnnounce reports whether a boot counts as coming back from a
// real outage. Announce when no usable record exists, when the previous
// process marked itself offline, or when its last heartbeat is older
// than offlineGap (a crash that never wrote the offline record).
func shouldAnnounce(prev *statusFile, now time.Time, offlineGap time.Duration) bool {
	if prev == nil {
		return true
	}
	if !prev.Online {
		return true
	}
	return now.Sub(prev.TimestampUTC) > offlineGap
}
