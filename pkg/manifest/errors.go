package manifest

import "errors"

// 清单相关错误
var (
	// ErrInvalidManifest 清单格式无效
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrNoSource 未配置清单来源
	ErrNoSource = errors.New("manifest source not configured")
	// ErrFetchFailed 拉取清单失败
	ErrFetchFailed = errors.New("manifest fetch failed")
)
