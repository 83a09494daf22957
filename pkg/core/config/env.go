package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles 默认加载的本地环境文件，后者覆盖前者
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadDotEnv 把本地 .env 文件加载到进程环境，返回实际加载的文件
//
// 文件不存在时跳过。文件中的值覆盖已有环境变量，
// 因此 STORYCTX_ 前缀的键和 LLM 密钥都可以放在 .env 里。
func LoadDotEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}
