// Package remote implements internal/detect.Model over a gRPC call to an
// external PPE inference service, as an alternative to the in-process
// internal/detect/onnx backend. The generated client stub
// (gen/go/detect/v1, from api/detectpb/detect.proto) is produced by
// protoc-gen-go/protoc-gen-go-grpc at build time, the same pattern used
// elsewhere in the codebase for generated gRPC client stubs.
package remote

import (
	"context"
	"fmt"

	detectv1 "github.com/sudharshan/ppe-monitor/gen/go/detect/v1"
	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/detect"
	"github.com/sudharshan/ppe-monitor/internal/track"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a detect.Model backed by a remote DetectService.
type Client struct {
	conn   *grpc.ClientConn
	client detectv1.DetectServiceClient
	cfg    *detect.ConfigStore
}

// New dials addr and wraps it as a detect.Model. Per the facade's fatal
// load-error contract, a dial failure is wrapped in detect.ErrModelLoad.
func New(addr string, cfg detect.Config) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial detector service %s: %v", detect.ErrModelLoad, addr, err)
	}
	return &Client{
		conn:   conn,
		client: detectv1.NewDetectServiceClient(conn),
		cfg:    detect.NewConfigStore(cfg),
	}, nil
}

func (c *Client) Detect(ctx context.Context, frame []byte) ([]compliance.Detection, error) {
	cfg := c.cfg.Get()
	resp, err := c.client.Detect(ctx, &detectv1.DetectRequest{
		Frame:               frame,
		InputSize:           int32(cfg.InputSize),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		NmsIou:              cfg.NMSIoU,
		MaxDetections:       int32(cfg.MaxDetections),
	})
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}

	out := make([]compliance.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		out = append(out, compliance.Detection{
			Class:      compliance.Class(d.ClassName),
			Confidence: d.Confidence,
			Box: track.Box{
				X1: d.Box.X1, Y1: d.Box.Y1,
				X2: d.Box.X2, Y2: d.Box.Y2,
			},
		})
	}
	return out, nil
}

func (c *Client) SetConfig(cfg detect.Config) { c.cfg.Set(cfg) }
func (c *Client) Config() detect.Config       { return c.cfg.Get() }

// Healthy reports whether the remote detector process considers itself
// ready to serve.
func (c *Client) Healthy(ctx context.Context) (bool, string, error) {
	resp, err := c.client.Health(ctx, &detectv1.HealthRequest{})
	if err != nil {
		return false, "", err
	}
	return resp.Ok, resp.Status, nil
}

func (c *Client) Close() error { return c.conn.Close() }
