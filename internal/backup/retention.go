package backup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionPolicy controls how many backups to keep per age tier.
type RetentionPolicy struct {
	Hourly  int // backups younger than 24h
	Daily   int // backups between 1 and 7 days
	Weekly  int // backups between 7 and 30 days
	Monthly int // backups between 30 and 365 days
}

func (p *RetentionPolicy) applyDefaults() {
	if p.Hourly <= 0 {
		p.Hourly = 24
	}
	if p.Daily <= 0 {
		p.Daily = 7
	}
	if p.Weekly <= 0 {
		p.Weekly = 4
	}
	if p.Monthly <= 0 {
		p.Monthly = 12
	}
}

type backupFile struct {
	path    string
	modTime time.Time
}

// applyRetention deletes backup files beyond the per-tier keep counts.
// Anything older than a year is always deleted.
func applyRetention(dir string, policy RetentionPolicy) error {
	files, err := listBackups(dir)
	if err != nil {
		return err
	}

	now := time.Now()
	var hourly, daily, weekly, monthly []backupFile
	var expired []backupFile

	for _, f := range files {
		age := now.Sub(f.modTime)
		switch {
		case age < 24*time.Hour:
			hourly = append(hourly, f)
		case age < 7*24*time.Hour:
			daily = append(daily, f)
		case age < 30*24*time.Hour:
			weekly = append(weekly, f)
		case age < 365*24*time.Hour:
			monthly = append(monthly, f)
		default:
			expired = append(expired, f)
		}
	}

	var doomed []backupFile
	doomed = append(doomed, overflow(hourly, policy.Hourly)...)
	doomed = append(doomed, overflow(daily, policy.Daily)...)
	doomed = append(doomed, overflow(weekly, policy.Weekly)...)
	doomed = append(doomed, overflow(monthly, policy.Monthly)...)
	doomed = append(doomed, expired...)

	for _, f := range doomed {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// overflow returns the oldest files beyond the keep count.
func overflow(files []backupFile, keep int) []backupFile {
	if len(files) <= keep {
		return nil
	}
	return files[keep:]
}

// listBackups returns backup files in dir, newest first.
func listBackups(dir string) ([]backupFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []backupFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}
