package store

import "errors"

// 存储相关错误
var (
	// ErrNotFound 未找到
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput 无效输入
	ErrInvalidInput = errors.New("invalid input")
	// ErrConnectionFailed 连接失败
	ErrConnectionFailed = errors.New("connection failed")
	// ErrUnsupportedStore 不支持的存储类型
	ErrUnsupportedStore = errors.New("unsupported store type")
)
