package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLParser 实现 koanf.Parser
type YAMLParser struct{}

// YAML 返回 YAML 解析器
func YAML() *YAMLParser {
	return &YAMLParser{}
}

// Unmarshal 解析 YAML 为嵌套 map
func (p *YAMLParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]interface{})
	}
	return out, nil
}

// Marshal 序列化嵌套 map 为 YAML
func (p *YAMLParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(o)
}

// FileProvider 实现 koanf.Provider，读取本地文件
type FileProvider struct {
	path string
}

// File 返回文件 Provider
func File(path string) *FileProvider {
	return &FileProvider{path: path}
}

// ReadBytes 读取文件内容
func (f *FileProvider) ReadBytes() ([]byte, error) {
	return os.ReadFile(f.path)
}

// Read 不支持，文件内容需要配合 Parser 使用
func (f *FileProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("file provider does not support Read()")
}

// parseValue 把命令行上的值解析为 YAML 标量或列表，解析失败时按字符串处理
func parseValue(raw string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}
