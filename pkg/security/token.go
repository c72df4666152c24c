package security

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lk2023060901/httpremote/pkg/config"
)

// BearerPrefix Authorization 头中令牌的前缀
const BearerPrefix = "Bearer "

// TokenConfig 节点间令牌配置
// 集群内所有节点共享同一个 HS256 密钥，Secret 为空时不启用认证
type TokenConfig struct {
	Secret string `mapstructure:"secret"`
	// Issuer 签发与校验时使用的 iss
	Issuer string `mapstructure:"issuer"`
	// TTL 单个令牌的有效期
	TTL time.Duration `mapstructure:"ttl"`
	// Leeway 校验时间类声明时允许的时钟偏差
	Leeway time.Duration `mapstructure:"leeway"`
}

// DefaultTokenConfig 默认令牌配置，不含密钥
func DefaultTokenConfig() *TokenConfig {
	return &TokenConfig{
		Issuer: "httpremote",
		TTL:    5 * time.Minute,
		Leeway: 30 * time.Second,
	}
}

// Enabled 配置了密钥才启用
func (c *TokenConfig) Enabled() bool {
	return c != nil && c.Secret != ""
}

// Claims 节点令牌声明，Subject 为签发节点的服务名
type Claims struct {
	jwt.RegisteredClaims

	// Role 签发节点的角色（server / worker）
	Role string `json:"role,omitempty"`
}

// TokenManager 签发与校验节点令牌
type TokenManager struct {
	config *TokenConfig
	key    []byte
	now    func() time.Time
}

// TokenOption TokenManager 选项
type TokenOption func(*TokenManager)

// WithClock 替换时间源
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenManager 创建令牌管理器，密钥为空时返回 ErrSecretEmpty
func NewTokenManager(cfg *TokenConfig, opts ...TokenOption) (*TokenManager, error) {
	var src *TokenConfig
	if cfg != nil {
		copied := *cfg
		src = &copied
	}
	merged, err := config.MergeConfig(DefaultTokenConfig(), src)
	if err != nil {
		return nil, err
	}
	if merged.Secret == "" {
		return nil, ErrSecretEmpty
	}

	m := &TokenManager{
		config: merged,
		key:    []byte(merged.Secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config 合并默认值后的配置
func (m *TokenManager) Config() *TokenConfig {
	return m.config
}

// Issue 签发令牌
func (m *TokenManager) Issue(subject, role string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.config.TTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign node token")
	}
	return signed, expiresAt, nil
}

// Validate 校验令牌，允许带 Bearer 前缀
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, BearerPrefix))
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, wrapError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// wrapError 转换成本包的错误分类，保留 jwt 的错误信息
// jwt 的错误是多 cause 的组合错误，用标准库 errors.Is 判断
func wrapError(err error) error {
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return errors.Mark(err, ErrTokenExpired)
	case stderrors.Is(err, jwt.ErrTokenNotValidYet):
		return errors.Mark(err, ErrTokenNotValidYet)
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return errors.Mark(err, ErrTokenMalformed)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Mark(err, ErrSignatureInvalid)
	default:
		return errors.Mark(err, ErrTokenInvalid)
	}
}

// TokenSource 缓存签发的令牌，剩余有效期不足一半时重新签发
type TokenSource struct {
	manager *TokenManager
	subject string
	role    string

	mu        sync.Mutex
	token     string
	refreshAt time.Time
}

// Source 为固定的 subject 与 role 创建 TokenSource
func (m *TokenManager) Source(subject, role string) *TokenSource {
	return &TokenSource{manager: m, subject: subject, role: role}
}

// Token 返回可用的令牌
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.manager.now()
	if s.token != "" && now.Before(s.refreshAt) {
		return s.token, nil
	}

	token, expiresAt, err := s.manager.Issue(s.subject, s.role)
	if err != nil {
		return "", err
	}
	s.token = token
	s.refreshAt = now.Add(expiresAt.Sub(now) / 2)
	return token, nil
}

// Authorization 返回 Authorization 头的值
func (s *TokenSource) Authorization() (string, error) {
	token, err := s.Token()
	if err != nil {
		return "", err
	}
	return BearerPrefix + token, nil
}

type claimsContextKey struct{}

// ContextWithClaims 将校验通过的声明存入 context
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext 取出调用方节点的声明
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}
