package otel

import (
	"fmt"
	"time"
)

// Config 可观测性配置
type Config struct {
	// Enabled 是否启用可观测性
	Enabled bool `koanf:"enabled" yaml:"enabled"`

	// ServiceName 服务名称
	ServiceName string `koanf:"service_name" yaml:"service_name"`
	// ServiceVersion 服务版本
	ServiceVersion string `koanf:"service_version" yaml:"service_version"`
	// Environment 环境（dev, staging, prod）
	Environment string `koanf:"environment" yaml:"environment"`

	// Tracing 追踪配置
	Tracing TracingConfig `koanf:"tracing" yaml:"tracing"`
	// Metrics 指标配置
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	// Logging 日志配置
	Logging LoggingConfig `koanf:"logging" yaml:"logging"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	// Enabled 是否启用追踪
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// Exporter 导出器类型（otlp-grpc, otlp-http, stdout, none）
	Exporter ExporterType `koanf:"exporter" yaml:"exporter"`
	// Endpoint OTLP 端点
	Endpoint string `koanf:"endpoint" yaml:"endpoint"`
	// Insecure 是否使用不安全连接
	Insecure bool `koanf:"insecure" yaml:"insecure"`
	// SampleRate 采样率 (0.0-1.0)
	SampleRate float64 `koanf:"sample_rate" yaml:"sample_rate"`
	// Timeout 导出超时
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否启用指标
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// Exporter 导出器类型
	Exporter ExporterType `koanf:"exporter" yaml:"exporter"`
	// Endpoint OTLP 端点
	Endpoint string `koanf:"endpoint" yaml:"endpoint"`
	// Insecure 是否使用不安全连接
	Insecure bool `koanf:"insecure" yaml:"insecure"`
	// Interval 导出间隔
	Interval time.Duration `koanf:"interval" yaml:"interval"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level 日志级别 (debug, info, warn, error)
	Level string `koanf:"level" yaml:"level"`
	// Format 日志格式 (text, json)
	Format string `koanf:"format" yaml:"format"`
	// IncludeTraceID 是否包含 Trace ID
	IncludeTraceID bool `koanf:"include_trace_id" yaml:"include_trace_id"`
}

// exporterConfig 转换为导出器配置
func (c TracingConfig) exporterConfig() ExporterConfig {
	return ExporterConfig{
		Type:     c.Exporter,
		Endpoint: c.Endpoint,
		Insecure: c.Insecure,
		Timeout:  c.Timeout,
	}
}

// exporterConfig 转换为导出器配置
func (c MetricsConfig) exporterConfig() ExporterConfig {
	return ExporterConfig{
		Type:     c.Exporter,
		Endpoint: c.Endpoint,
		Insecure: c.Insecure,
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "storyctx",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   ExporterOTLPGRPC,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
			Timeout:    30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Exporter: ExporterOTLPGRPC,
			Endpoint: "localhost:4317",
			Insecure: true,
			Interval: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			IncludeTraceID: true,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	for _, t := range []ExporterType{c.Tracing.Exporter, c.Metrics.Exporter} {
		if t != "" && !t.IsValid() {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrUnsupportedExporter, t)
		}
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.ServiceName == "" {
		c.ServiceName = defaults.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = defaults.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = defaults.Environment
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Metrics.Exporter == "" {
		c.Metrics.Exporter = defaults.Metrics.Exporter
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = defaults.Tracing.Endpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if c.Tracing.Timeout == 0 {
		c.Tracing.Timeout = defaults.Tracing.Timeout
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = defaults.Metrics.Endpoint
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = defaults.Metrics.Interval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}

	return c
}
