//go:build windows

package evaluator

import (
	"syscall"
	"time"
	"unsafe"
)

var (
	kernel32DLL = syscall.NewLazyDLL("kernel32.dll")
	qpcProc     = kernel32DLL.NewProc("QueryPerformanceCounter")
	qpfProc     = kernel32DLL.NewProc("QueryPerformanceFrequency")
	qpcFreq     int64
)

func init() {
	qpfProc.Call(uintptr(unsafe.Pointer(&qpcFreq)))
}

// hiresNow returns a high-resolution monotonic timestamp (QPC count).
func hiresNow() int64 {
	var count int64
	qpcProc.Call(uintptr(unsafe.Pointer(&count)))
	return count
}

// hiresSince returns the time elapsed since startCount.
func hiresSince(startCount int64) time.Duration {
	ticks := hiresNow() - startCount
	return time.Duration(ticks/qpcFreq*int64(time.Second) + ticks%qpcFreq*int64(time.Second)/qpcFreq)
}
