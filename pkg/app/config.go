package app

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 HTTPREMOTE_REMOTE_BIND_PORT -> remote.bind_port
const EnvPrefix = "HTTPREMOTE"

var (
	configPath string
	logPath    string
)

// LoadConfig 使用进程命令行参数加载配置
// 严格遵守优先级：1. 命令行显式参数 > 2. 环境变量 > 3. 配置文件 > 4. 默认值
func LoadConfig(target any, opts ...config.Option) error {
	return LoadConfigFrom(pflag.CommandLine, os.Args[1:], target, opts...)
}

// LoadConfigFrom 在指定 FlagSet 上注册 --config 与 --log.path 并加载配置
// 显式指定（flag 或 HTTPREMOTE_CONFIG）的配置文件必须存在；默认路径下没有文件时只用默认值与环境变量
// 未出现在默认值或配置文件中的 key 不会被环境变量覆盖，调用方应通过 config.WithDefaults 声明所有 key
func LoadConfigFrom(fs *pflag.FlagSet, args []string, target any, opts ...config.Option) error {
	// 1. 获取执行目录，用于计算默认值
	execDir, err := GetExecDir()
	if err != nil {
		return errors.Wrap(err, "failed to get executable directory")
	}

	// 2. 预计算默认物理路径
	defaultConfig := filepath.Join(execDir, "config.yaml")
	defaultLog := filepath.Join(execDir, "logs", "httpremote.log")

	// 3. 注册命令行参数
	if fs.Lookup("config") == nil {
		fs.StringP("config", "c", defaultConfig, "path to config file")
	}
	if fs.Lookup("log.path") == nil {
		fs.String("log.path", defaultLog, "output path for logs")
	}

	// 4. 解析命令行参数
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return errors.Wrap(err, "failed to parse flags")
		}
	}

	// 5. 创建配置管理器，调用方的选项（默认值等）最后应用
	v := viper.New()
	v.SetDefault("log.output_path", defaultLog)
	mgr := config.NewManager(append([]config.Option{
		config.WithViper(v),
		config.WithEnvPrefix(EnvPrefix),
	}, opts...)...)

	// 6. 确定配置文件路径
	// 优先级：Flag 显式指定 > 环境变量 HTTPREMOTE_CONFIG > 默认物理路径
	path, _ := fs.GetString("config")
	explicit := fs.Changed("config")
	if !explicit {
		if envConfig := os.Getenv(EnvPrefix + "_CONFIG"); envConfig != "" {
			path = envConfig
			explicit = true
		}
	}

	if err := mgr.LoadFile(path); err != nil {
		if explicit || !errors.Is(err, config.ErrConfigFileNotFound) {
			return err
		}
		path = ""
	}
	configPath = path

	// 7. 如果命令行显式使用了 --log.path，则强制覆盖所有来源（最高优先级）
	if fs.Changed("log.path") {
		p, _ := fs.GetString("log.path")
		v.Set("log.output_path", p)
		v.Set("log.enable_file", true)
	}

	// 8. 解析到目标结构体
	if err := mgr.Unmarshal(target); err != nil {
		return err
	}

	// 9. 获取最终生效的日志路径（用于自动创建目录）
	logPath = mgr.GetString("log.output_path")
	if v.GetBool("log.enable_file") && logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return errors.Wrapf(err, "failed to create log directory for %s", logPath)
		}
	}

	return nil
}

// GetExecDir 获取可执行文件所在目录（处理符号链接）
func GetExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return filepath.Dir(execPath), nil
	}
	return filepath.Dir(realPath), nil
}

// GetConfigPath 返回最终使用的配置文件路径，没有加载文件时为空
func GetConfigPath() string {
	return configPath
}

// GetLogPath 返回最终生效的日志文件路径
func GetLogPath() string {
	return logPath
}
