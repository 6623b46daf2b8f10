package storage

import (
	"fmt"
	"time"

	"github.com/any-hub/img-hub/internal/config"
)

// New 根据配置创建存储驱动，并套上路径前缀。
func New(cfg config.StoreConfig, prefix string, httpTimeout time.Duration) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Driver {
	case config.DriverLocal:
		backend, err = NewLocal(cfg.Root)
	case config.DriverS3:
		backend, err = NewS3(S3Options{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	case config.DriverHTTP:
		backend, err = NewHTTP(cfg.BaseURL, httpTimeout)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithPrefix(backend, prefix), nil
}
