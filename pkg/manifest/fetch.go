package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxManifestSize 单个清单的最大字节数
const maxManifestSize = 4 << 20

// Fetcher 拉取清单原始内容
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FetcherFunc 适配普通函数为 Fetcher
type FetcherFunc func(ctx context.Context) ([]byte, error)

// Fetch 实现 Fetcher
func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// HTTPFetcher 通过 HTTP GET 拉取清单
type HTTPFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPFetcher 创建 HTTPFetcher
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch 实现 Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/yaml, application/json;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchFailed, f.url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

// FileFetcher 从本地文件读取清单
type FileFetcher struct {
	path string
}

// NewFileFetcher 创建 FileFetcher
func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

// Fetch 实现 Fetcher
func (f *FileFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

// NewFetcher 按来源选择 Fetcher：http(s) 地址使用 HTTPFetcher，其余视为本地路径
func NewFetcher(source string, timeout time.Duration) (Fetcher, error) {
	switch {
	case source == "":
		return nil, ErrNoSource
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewHTTPFetcher(source, timeout), nil
	default:
		return NewFileFetcher(strings.TrimPrefix(source, "file://")), nil
	}
}

// 编译时接口检查
var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*FileFetcher)(nil)
	_ Fetcher = FetcherFunc(nil)
)
