package security

import "github.com/cockroachdb/errors"

// 节点令牌错误
var (
	ErrSecretEmpty      = errors.New("security: secret is empty")
	ErrTokenMissing     = errors.New("security: token is missing")
	ErrTokenInvalid     = errors.New("security: token is invalid")
	ErrTokenExpired     = errors.New("security: token has expired")
	ErrTokenNotValidYet = errors.New("security: token is not valid yet")
	ErrTokenMalformed   = errors.New("security: token is malformed")
	ErrSignatureInvalid = errors.New("security: signature is invalid")
)

// IP 过滤错误
var (
	ErrIPDenied    = errors.New("security: IP address denied")
	ErrIPInvalid   = errors.New("security: invalid IP address")
	ErrCIDRInvalid = errors.New("security: invalid CIDR")
)
