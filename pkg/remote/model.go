package remote

import (
	"net"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Address 远程进程地址，Host:Port 是连接池的身份键
type Address struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// NewAddress 创建地址
func NewAddress(host string, port int) Address {
	return Address{Host: host, Port: port}
}

// ParseAddress 解析 "host:port"，IPv6 需使用 "[::1]:7700"
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, errors.Mark(errors.Wrapf(err, "invalid address %q", s), ErrConfig)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, errors.Mark(errors.Wrapf(err, "invalid port in address %q", s), ErrConfig)
	}
	addr := Address{Host: host, Port: port}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// FullAddress 返回 host:port
func (a Address) FullAddress() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) String() string {
	return a.FullAddress()
}

// Validate 校验 host 非空且端口在 1..65535
func (a Address) Validate() error {
	if strings.TrimSpace(a.Host) == "" {
		return errors.Mark(errors.New("address host is empty"), ErrConfig)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return errors.Mark(errors.Newf("address port %d out of range", a.Port), ErrConfig)
	}
	return nil
}

// Location 进程内的逻辑路由
type Location struct {
	Path string `json:"path" mapstructure:"path"`
}

// NewLocation 创建路由
func NewLocation(path string) Location {
	return Location{Path: path}
}

// ToPath 返回以 "/" 开头的路径
func (l Location) ToPath() string {
	if strings.HasPrefix(l.Path, "/") {
		return l.Path
	}
	return "/" + l.Path
}

func (l Location) String() string {
	return l.ToPath()
}

// URL 目标地址 + 路由，可直接用 == 比较
type URL struct {
	Address  Address  `json:"address"`
	Location Location `json:"location"`
}

// NewURL 创建 URL
func NewURL(addr Address, path string) URL {
	return URL{Address: addr, Location: NewLocation(path)}
}

// String 返回 http://host:port/path
func (u URL) String() string {
	return "http://" + u.Address.FullAddress() + u.Location.ToPath()
}

// ServerType 进程角色
type ServerType string

const (
	// ServerTypeServer 调度端，会与大量 worker 通信
	ServerTypeServer ServerType = "server"
	// ServerTypeWorker 执行端
	ServerTypeWorker ServerType = "worker"
)

// ParseServerType 不区分大小写
func ParseServerType(s string) (ServerType, error) {
	switch t := ServerType(strings.ToLower(strings.TrimSpace(s))); t {
	case ServerTypeServer, ServerTypeWorker:
		return t, nil
	default:
		return "", errors.Mark(errors.Newf("unknown server type %q", s), ErrConfig)
	}
}

func (t ServerType) String() string {
	return string(t)
}

// UnmarshalText 配置加载时规范化大小写，空值保持未设置
func (t *ServerType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = ""
		return nil
	}
	parsed, err := ParseServerType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Protocol 传输协议描述
type Protocol struct {
	Name string
}

// ProtocolHTTP HTTP 协议
var ProtocolHTTP = Protocol{Name: "HTTP"}
