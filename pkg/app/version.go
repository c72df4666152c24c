package app

import (
	"runtime"
	"runtime/debug"
)

// 编译时注入：-ldflags "-X github.com/lk2023060901/httpremote/pkg/app.Version=v1.2.0"
var (
	AppName   = "remoted"
	Version   = ""
	GitCommit = ""
	BuildDate = ""
)

// Info 进程构建信息
type Info struct {
	AppName   string `json:"appName"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
	Modified  bool   `json:"modified,omitempty"`
}

// GetInfo 未注入的字段从模块构建信息中补齐
func GetInfo() Info {
	info := Info{
		AppName:   AppName,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if len(info.GitCommit) > 12 {
		info.GitCommit = info.GitCommit[:12]
	}
	return info
}

// String 启动横幅
func (i Info) String() string {
	s := i.AppName + " " + i.Version
	if i.GitCommit != "" {
		s += " (" + i.GitCommit
		if i.Modified {
			s += "-dirty"
		}
		s += ")"
	}
	return s + " " + i.GoVersion + " " + i.Platform
}

// LogFields 启动日志使用的键值对
func (i Info) LogFields() []any {
	return []any{
		"name", i.AppName,
		"version", i.Version,
		"commit", i.GitCommit,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
		"platform", i.Platform,
	}
}
