package util

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 加载 .env.<env> 与 .env，已存在的环境变量优先
func LoadEnv(env string) error {
	files := make([]string, 0, 2)
	for _, name := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return nil
	}
	return godotenv.Load(files...)
}

// GetEnv 读取字符串环境变量
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvDefault 读取字符串环境变量，为空时返回默认值
func GetEnvDefault(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

// GetIntEnv 读取整数环境变量，解析失败返回0
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// GetIntEnvDefault 读取整数环境变量，未设置时返回默认值
func GetIntEnvDefault(key string, def int64) int64 {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return def
	}
	return n
}

// GetBoolEnv 读取布尔环境变量，支持 1/true/yes
func GetBoolEnv(key string) bool {
	v := strings.ToLower(GetEnv(key))
	if v == "yes" || v == "y" {
		return true
	}
	return cast.ToBool(v)
}

// GetFloatEnvDefault 读取浮点环境变量
func GetFloatEnvDefault(key string, def float64) float64 {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// GetDurationEnv 读取时长环境变量，纯数字按秒处理
func GetDurationEnv(key string, def time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}
