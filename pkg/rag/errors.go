package rag

import "errors"

// ErrInvalidDocument 文档格式无效
var ErrInvalidDocument = errors.New("invalid document")
