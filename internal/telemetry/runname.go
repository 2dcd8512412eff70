package telemetry

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	runPattern = regexp.MustCompile(`Tr(\d+)`)
	carPattern = regexp.MustCompile(`F4-(\d+)`)
)

// RunName identifies a telemetry file.
type RunName struct {
	// Base is the file name without directory and extension.
	Base string
	// Run is the session run number from a "Tr<N>" token, 0 if absent.
	Run int
	// Car is the car number from an "F4-<N>" token, 0 if absent.
	Car int
}

// ParseRunName extracts run and car numbers from a telemetry file path such
// as "data/F4-12_Tr3.csv".
func ParseRunName(path string) RunName {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	rn := RunName{Base: base}
	if m := runPattern.FindStringSubmatch(base); m != nil {
		rn.Run, _ = strconv.Atoi(m[1])
	}
	if m := carPattern.FindStringSubmatch(base); m != nil {
		rn.Car, _ = strconv.Atoi(m[1])
	}
	return rn
}
