package vision

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryPath returns the ONNX Runtime shared library path
// based on the operating system.
func SharedLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// InitRuntime loads ONNX Runtime from libPath, or from the platform default
// when libPath is empty. Pair with DestroyRuntime.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = SharedLibraryPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime (%s): %w", libPath, err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}
