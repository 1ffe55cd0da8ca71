// Package platform reports the host the networks run on.
package platform

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Device describes the CPU used for computation. Only the host CPU is
// supported.
type Device struct {
	Brand         string
	Vendor        string
	PhysicalCores int
	LogicalCores  int
	GOMAXPROCS    int

	// SIMD lists the vector extensions gonum's assembly kernels can use.
	SIMD []string
}

var simdFeatures = []struct {
	id   cpuid.FeatureID
	name string
}{
	{cpuid.SSE2, "SSE2"},
	{cpuid.SSE4, "SSE4.1"},
	{cpuid.AVX, "AVX"},
	{cpuid.AVX2, "AVX2"},
	{cpuid.FMA3, "FMA3"},
	{cpuid.AVX512F, "AVX512F"},
	{cpuid.ASIMD, "NEON"},
}

// Host returns the device for the current process.
func Host() Device {
	d := Device{
		Brand:         cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
	}
	if d.Brand == "" {
		d.Brand = runtime.GOARCH
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			d.SIMD = append(d.SIMD, f.name)
		}
	}
	return d
}

func (d Device) String() string {
	simd := "none"
	if len(d.SIMD) > 0 {
		simd = strings.Join(d.SIMD, ",")
	}
	return fmt.Sprintf("%s (%d cores, %d threads, GOMAXPROCS=%d, SIMD %s)",
		strings.TrimSpace(d.Brand), d.PhysicalCores, d.LogicalCores, d.GOMAXPROCS, simd)
}
