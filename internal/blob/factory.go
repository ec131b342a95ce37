package blob

import (
	"context"
	"fmt"
	"strings"

	"docket/internal/config"
)

// Open selects a Store implementation from configuration (BLOB_DRIVER: fs|s3|memory, default fs).
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	driver := Driver(strings.ToLower(cfg.BlobDriver))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.BlobFSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Region:    cfg.BlobS3Region,
			Bucket:    cfg.BlobS3Bucket,
			Endpoint:  cfg.BlobS3Endpoint,
			PathStyle: cfg.BlobS3PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.BlobDriver)
	}
}
