package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 按环境加载 .env 文件，优先加载 .env.<env>，再加载 .env
// godotenv 不会覆盖已存在的环境变量，所以先加载的文件优先级更高
func LoadEnv(env string) error {
	files := make([]string, 0, 2)
	if env != "" {
		files = append(files, ".env."+env)
	}
	files = append(files, ".env")

	loaded := 0
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no env file found in %s", strings.Join(files, ", "))
	}
	return nil
}

// GetEnv 获取环境变量（去除首尾空白）
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetBoolEnv 获取布尔环境变量，无法解析时返回 false
func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetIntEnv 获取整数环境变量，无法解析时返回 0
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// SplitEnvList 将逗号分隔的环境变量拆分为列表，忽略空项
func SplitEnvList(key string) []string {
	raw := GetEnv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
