// Package perf samples system load and temperature and lowers the
// acquisition frame rate while the machine is under stress.
package perf

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Errors
var (
	ErrInvalidLoadAverage  = errors.New("perf: invalid load average format")
	ErrTemperatureNotFound = errors.New("perf: temperature sensors not found")
)

// Sample is one reading of the system state.
type Sample struct {
	Load        float64 // 1-minute load average
	Temperature float64 // Celsius, 0 when no sensor is readable
	MemoryUsage float64 // percent
}

// Monitor reads load, temperature and memory usage from procfs and sysfs.
type Monitor struct {
	LoadAvgPath  string
	MemInfoPath  string
	ThermalGlobs []string

	mu   sync.Mutex
	last Sample
}

// NewMonitor creates a monitor reading the standard Linux locations.
func NewMonitor() *Monitor {
	return &Monitor{
		LoadAvgPath: "/proc/loadavg",
		MemInfoPath: "/proc/meminfo",
		ThermalGlobs: []string{
			"/sys/class/thermal/thermal_zone*/temp",
		},
	}
}

// Sample takes a new reading. The load average is required; a missing
// temperature sensor or meminfo leaves those fields at zero.
func (m *Monitor) Sample() (Sample, error) {
	var s Sample
	load, err := readLoadAverage(m.LoadAvgPath)
	if err != nil {
		return s, err
	}
	s.Load = load
	if temp, err := readTemperature(m.ThermalGlobs); err == nil {
		s.Temperature = temp
	}
	if mem, err := readMemoryUsage(m.MemInfoPath); err == nil {
		s.MemoryUsage = mem
	}

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
	return s, nil
}

// Last returns the most recent reading.
func (m *Monitor) Last() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func readLoadAverage(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, ErrInvalidLoadAverage
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, ErrInvalidLoadAverage
	}
	return v, nil
}

// readTemperature averages every readable thermal zone. Values are in
// millidegrees Celsius.
func readTemperature(globs []string) (float64, error) {
	var total float64
	var count int
	for _, g := range globs {
		paths, _ := filepath.Glob(g)
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
				total += v / 1000
				count++
			}
		}
	}
	if count == 0 {
		return 0, ErrTemperatureNotFound
	}
	return total / float64(count), nil
}

func readMemoryUsage(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var total, available int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable:":
			available, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if total <= 0 {
		return 0, nil
	}
	return 100 * float64(total-available) / float64(total), nil
}
