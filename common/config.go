package common

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	// 默认的文生图模型（v1beta generateContent）
	DefaultImageModel = "models/gemini-2.5-flash-image"
	// 默认的 Imagen 模型（参考图生成，REFERENCE_BACKEND=imagen 时使用）
	DefaultImagenModel = "models/imagen-3.0-generate-001"
	// 默认 Gemini API 地址
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	// 上传图片大小上限：10MB
	DefaultUploadMaxBytes = 10 * 1024 * 1024

	ReferenceBackendGemini = "gemini"
	ReferenceBackendImagen = "imagen"
)

// Config 应用配置结构
type Config struct {
	// Gemini 配置
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	// 文生图使用的模型名称
	GeminiImageModel string
	// Imagen 参考图生成使用的模型名称
	ImagenModel string
	// 参考图生成后端: gemini 或 imagen
	ReferenceBackend string
	// GenAI 请求超时时间（秒），0 表示不设置
	GenAITimeoutSeconds int

	ServerAddress string
	ServerPort    string
	// 上传图片大小上限（字节）
	UploadMaxBytes int64
	// CORS 允许的来源
	CORSAllowedOrigins []string
	// 是否挂载 MCP 端点
	MCPEnabled bool
	// 是否允许下载私有网络中的图片（用于 imageUrl 二次下载）
	ImageFetchAllowPrivate bool

	// OSS 配置（仅用于读取 s3:// 图片地址）
	OSSEndpoint  string
	OSSRegion    string
	OSSAccessKey string
	OSSSecretKey string

	// 日志配置
	LogLevel  string // 日志级别: debug, info, warn, error
	LogFormat string // 日志格式: json, text
	LogOutput string // 输出位置: stdout, stderr, file
	LogFile   string // 日志文件路径（当 LogOutput 为 file 时）
}

// LoadConfig 从 .env 文件加载配置
//
// GEMINI_API_KEY 缺失不会导致加载失败：服务照常启动，由接口返回配置错误。
func LoadConfig() (*Config, error) {
	// 加载 .env 文件（如果存在）
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	config := &Config{
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:       strings.TrimRight(getEnv("GEMINI_BASE_URL", DefaultGeminiBaseURL), "/"),
		GeminiAPIVersion:    getEnv("GEMINI_API_VERSION", "v1beta"),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", getEnv("GEMINI_MODEL", DefaultImageModel)),
		ImagenModel:         getEnv("IMAGEN_MODEL", DefaultImagenModel),
		ReferenceBackend:    strings.ToLower(getEnv("REFERENCE_BACKEND", ReferenceBackendGemini)),
		GenAITimeoutSeconds: getEnvInt("GENAI_TIMEOUT_SECONDS", 120),
		ServerAddress:       getEnv("SERVER_ADDRESS", ""),
		ServerPort:          getEnv("PORT", "3000"),
		UploadMaxBytes:      int64(getEnvInt("UPLOAD_MAX_BYTES", DefaultUploadMaxBytes)),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MCPEnabled:          getEnvBool("MCP_ENABLED", true),

		ImageFetchAllowPrivate: getEnvBool("IMAGE_FETCH_ALLOW_PRIVATE", false),
		// OSS 配置
		OSSEndpoint:  getEnv("OSS_ENDPOINT", ""),
		OSSRegion:    getEnv("OSS_REGION", "us-east-1"),
		OSSAccessKey: getEnv("OSS_ACCESS_KEY", ""),
		OSSSecretKey: getEnv("OSS_SECRET_KEY", ""),
		// 日志配置
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	switch config.ReferenceBackend {
	case ReferenceBackendGemini, ReferenceBackendImagen:
	default:
		return nil, fmt.Errorf("unsupported REFERENCE_BACKEND: %s", config.ReferenceBackend)
	}

	if config.UploadMaxBytes <= 0 {
		config.UploadMaxBytes = DefaultUploadMaxBytes
	}

	// 初始化日志系统
	logConfig := &LogConfig{
		Level:    config.LogLevel,
		Format:   config.LogFormat,
		Output:   config.LogOutput,
		FilePath: config.LogFile,
	}
	if err := InitLogger(logConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	value = strings.ToLower(value)
	return value == "true" || value == "1" || value == "yes" || value == "on"
}

// getEnvInt 获取整型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

// splitList 解析逗号分隔的列表，忽略空项
func splitList(value string) []string {
	items := lo.Map(strings.Split(value, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Filter(items, func(s string, _ int) bool {
		return s != ""
	})
}

// GetServerAddr 返回完整的服务器地址
func (c *Config) GetServerAddr() string {
	return net.JoinHostPort(c.ServerAddress, c.ServerPort)
}

// HasAPIKey 是否配置了 Gemini API Key
func (c *Config) HasAPIKey() bool {
	return c.GeminiAPIKey != ""
}
