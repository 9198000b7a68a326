package rknn

import (
	"fmt"
	"syscall"
	"unsafe"
)

// fastCores is the CPU affinity mask of the performance cores per Rockchip
// platform.  Platforms with a single cluster use all cores
var fastCores = map[string]uintptr{
	"rk3588": 0b11110000,
	"rk3582": 0b00110000,
	"rk3576": 0b11110000,
	"rk3568": 0b00001111,
	"rk3566": 0b00001111,
	"rk3562": 0b00001111,
}

// PinFastCores sets the CPU affinity of the program to the performance
// cores of the named platform so pre and post processing is not scheduled
// on the efficiency cores
func PinFastCores(platform string) error {

	mask, ok := fastCores[platform]

	if !ok {
		return fmt.Errorf("unknown platform %q", platform)
	}

	_, _, errno := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if errno != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", errno)
	}

	return nil
}
