package backup

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendDrive  = "drive"
	BackendS3     = "s3"
)

// Open builds the Service named by backend. BackendNone yields a nil Service,
// which callers treat as "sync disabled".
func Open(ctx context.Context, backend string, driveCfg DriveConfig, s3Cfg S3Config) (Service, error) {
	switch backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendDrive:
		return NewDrive(ctx, driveCfg)
	case BackendS3:
		return NewS3(ctx, s3Cfg)
	}
	return nil, fmt.Errorf("unknown sync backend %q", backend)
}
