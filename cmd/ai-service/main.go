// Command ai-service hosts the external PPE inference process that
// internal/detect/remote dials as an alternative to the in-process
// internal/detect/onnx backend (api/detectpb/detect.proto).
package main

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"google.golang.org/grpc"

	detectv1 "github.com/sudharshan/ppe-monitor/gen/go/detect/v1"
)

func main() {
	addr := getEnv("DETECT_SERVICE_ADDR", ":9001")
	modelDir := getEnv("MODEL_DIR", defaultModelDir())
	inputSize := getEnvInt("MODEL_INPUT_SIZE", 640)
	maxDetections := getEnvInt("MODEL_MAX_DETECTIONS", 100)

	det := NewDetector(modelDir, inputSize, maxDetections)
	defer det.Close()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("[ai-service] listen %s: %v", addr, err)
	}

	srv := grpc.NewServer()
	detectv1.RegisterDetectServiceServer(srv, &detectServer{detector: det})

	log.Printf("[ai-service] DetectService listening on %s (model dir %s, model loaded: %v)", addr, modelDir, det.ModelLoaded())
	if err := srv.Serve(lis); err != nil {
		log.Fatalf("[ai-service] serve: %v", err)
	}
}

func defaultModelDir() string {
	exePath, err := os.Executable()
	if err != nil {
		return "models"
	}
	return filepath.Join(filepath.Dir(exePath), "models")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
