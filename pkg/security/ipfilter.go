package security

import (
	"net"
	"strings"
	"sync"
)

// IPFilterConfig 入站地址过滤，单个 IP 与 CIDR 均可
// Deny 优先；Allow 非空时只放行匹配的地址
type IPFilterConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// Enabled 任一列表非空时启用
func (c *IPFilterConfig) Enabled() bool {
	return c != nil && (len(c.Allow) > 0 || len(c.Deny) > 0)
}

// IPFilter IP 过滤器，可以在运行中追加拒绝规则
type IPFilter struct {
	mu    sync.RWMutex
	allow []*net.IPNet
	deny  []*net.IPNet
}

// NewIPFilter 创建 IP 过滤器，规则非法时返回 ErrIPInvalid 或 ErrCIDRInvalid
func NewIPFilter(cfg *IPFilterConfig) (*IPFilter, error) {
	f := &IPFilter{}
	if cfg == nil {
		return f, nil
	}

	var err error
	if f.allow, err = parseRules(cfg.Allow); err != nil {
		return nil, err
	}
	if f.deny, err = parseRules(cfg.Deny); err != nil {
		return nil, err
	}
	return f, nil
}

func parseRules(rules []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(rules))
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		n, err := parseRule(rule)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// parseRule 单个 IP 转换成全长掩码的网段
func parseRule(rule string) (*net.IPNet, error) {
	if strings.Contains(rule, "/") {
		_, n, err := net.ParseCIDR(rule)
		if err != nil {
			return nil, ErrCIDRInvalid
		}
		return n, nil
	}

	ip := net.ParseIP(rule)
	if ip == nil {
		return nil, ErrIPInvalid
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

// Allow 检查 IP 是否允许访问，无法解析的地址一律拒绝
func (f *IPFilter) Allow(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if contains(f.deny, parsed) {
		return false
	}
	return len(f.allow) == 0 || contains(f.allow, parsed)
}

// AllowAddr 检查 host:port 形式的远程地址
func (f *IPFilter) AllowAddr(remoteAddr string) bool {
	return f.Allow(HostOf(remoteAddr))
}

// Deny 追加拒绝规则
func (f *IPFilter) Deny(rule string) error {
	n, err := parseRule(strings.TrimSpace(rule))
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.deny = append(f.deny, n)
	f.mu.Unlock()
	return nil
}

// Rules 当前的放行与拒绝规则
func (f *IPFilter) Rules() (allow, deny []string) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, n := range f.allow {
		allow = append(allow, n.String())
	}
	for _, n := range f.deny {
		deny = append(deny, n.String())
	}
	return allow, deny
}

func contains(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// HostOf 去掉端口，支持 [ipv6]:port
func HostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
