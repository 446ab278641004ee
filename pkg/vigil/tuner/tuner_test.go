package tuner

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	resources, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}

	if resources.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d (runtime.NumCPU())", resources.CPUCores, runtime.NumCPU())
	}
	if resources.TotalRAM <= 0 {
		t.Errorf("TotalRAM = %d, want > 0", resources.TotalRAM)
	}
	if resources.AvailableRAM > resources.TotalRAM {
		t.Errorf("AvailableRAM (%d) > TotalRAM (%d)", resources.AvailableRAM, resources.TotalRAM)
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		resources  SystemResources
		wantHash   int
		wantWalk   int
		wantBuffer int
	}{
		{
			name:       "single core, no memory info",
			resources:  SystemResources{CPUCores: 1},
			wantHash:   4,
			wantWalk:   4,
			wantBuffer: 64,
		},
		{
			name:       "eight cores, 16GB",
			resources:  SystemResources{CPUCores: 8, TotalRAM: 16 << 30, AvailableRAM: 8 << 30},
			wantHash:   16,
			wantWalk:   8,
			wantBuffer: 4096,
		},
		{
			name:       "large server is capped",
			resources:  SystemResources{CPUCores: 128, TotalRAM: 512 << 30, AvailableRAM: 256 << 30},
			wantHash:   64,
			wantWalk:   32,
			wantBuffer: 4096,
		},
		{
			name:       "small memory",
			resources:  SystemResources{CPUCores: 2, TotalRAM: 64 << 20, AvailableRAM: 10 << 20},
			wantHash:   4,
			wantWalk:   4,
			wantBuffer: 204,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.resources)
			if got.HashWorkers != tt.wantHash {
				t.Errorf("HashWorkers = %d, want %d", got.HashWorkers, tt.wantHash)
			}
			if got.WalkWorkers != tt.wantWalk {
				t.Errorf("WalkWorkers = %d, want %d", got.WalkWorkers, tt.wantWalk)
			}
			if got.ResultBuffer != tt.wantBuffer {
				t.Errorf("ResultBuffer = %d, want %d", got.ResultBuffer, tt.wantBuffer)
			}
		})
	}
}

func TestCalculateWithOverrides(t *testing.T) {
	resources := SystemResources{CPUCores: 4, AvailableRAM: 1 << 30}

	if got := CalculateWithOverrides(resources, 0).HashWorkers; got != 8 {
		t.Errorf("no override: HashWorkers = %d, want 8", got)
	}
	if got := CalculateWithOverrides(resources, 3).HashWorkers; got != 3 {
		t.Errorf("override 3: HashWorkers = %d, want 3", got)
	}
	if got := CalculateWithOverrides(resources, 500).HashWorkers; got != 64 {
		t.Errorf("override 500: HashWorkers = %d, want 64", got)
	}
}

func TestAuto(t *testing.T) {
	cfg := Auto(0)
	if cfg.HashWorkers < minHashWorkers || cfg.HashWorkers > maxWorkers {
		t.Errorf("Auto().HashWorkers = %d, out of range", cfg.HashWorkers)
	}
	if cfg.ResultBuffer < minResultBuffer {
		t.Errorf("Auto().ResultBuffer = %d, want >= %d", cfg.ResultBuffer, minResultBuffer)
	}
}
