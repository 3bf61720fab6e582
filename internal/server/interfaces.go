package server

import (
	"context"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

// DeviceService exposes the device registry operations required by the
// bus surface.
type DeviceService interface {
	DevicesJSON() string
	DeviceJSON(address string) (string, error)
	ConnectedCount() uint32
	SetNoiseMode(ctx context.Context, address string, mode airpods.NoiseControlMode) error
	SetFeature(ctx context.Context, address string, f airpods.Feature, enabled bool) error
	Passthrough(ctx context.Context, address string, packet []byte) error
	ConnectDevice(ctx context.Context, address string) error
	DisconnectDevice(ctx context.Context, address string) error
}

// MediaToggle exposes the automatic play/pause switch backing the
// SetAutoPlayPause and GetAutoPlayPause methods.
type MediaToggle interface {
	SetEnabled(enabled bool)
	Enabled() bool
}
