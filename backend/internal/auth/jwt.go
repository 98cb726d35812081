package auth

import (
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID   uint64 `json:"sub"`
	Username string `json:"username"`
	Type     string `json:"typ"` // "access" / "refresh"
	jwt.RegisteredClaims
}

var (
	secretOnce sync.Once
	secret     []byte
)

// SetSecret：进程启动时从配置注入签名密钥；
// 未注入时退回 JWT_SECRET 环境变量，再退回开发用默认值。
func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

func getSecret() []byte {
	secretOnce.Do(func() {
		if len(secret) > 0 {
			return
		}
		s := os.Getenv("JWT_SECRET")
		if s == "" {
			s = "dev-secret"
		}
		secret = []byte(s)
	})
	return secret
}

func SignAccessToken(userID uint64, username string, ttl time.Duration) (string, time.Time, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Type:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(getSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(ttl), nil
}

func SignRefreshToken(userID uint64, username string, ttl time.Duration) (string, time.Time, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Type:     "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(getSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(ttl), nil
}

// ParseToken 解析任意 token（访问/刷新），返回 Claims。
// 调用方负责检查 Type 是否符合场景要求。
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return getSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// Authenticate：authenticate(token) -> UserId 的窄接口。
// 只接受显式标记为 access 的 token：refresh 不能用来调业务接口，
// 缺失 typ 的 token 同样拒绝（这里签发的 token 一定带 typ）。
func Authenticate(tokenString string) (*Claims, error) {
	claims, err := ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != "access" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
