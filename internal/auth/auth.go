// Пакет auth проверяет JWT вызывающего и кладёт его в контекст запроса.
// Без заголовка Authorization запрос считается гостевым.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sharebox/internal/domain"
)

var (
	ErrNoToken      = errors.New("no authorization header")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type contextKey string

const callerKey contextKey = "caller"

// claims: sub и роль пользователя, выдаваемые сервисом аутентификации
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Verifier проверяет токены, подписанные HS256 общим секретом
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(conf Config) (*Verifier, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	v := &Verifier{
		secret: []byte(conf.JWTSecret),
		issuer: conf.Issuer,
		leeway: conf.Leeway,
		ttl:    conf.TokenTTL,
		now:    time.Now,
	}
	if v.leeway <= 0 {
		v.leeway = defaultLeeway
	}
	if v.ttl <= 0 {
		v.ttl = defaultTokenTTL
	}
	return v, nil
}

// VerifyToken извлекает вызывающего из заголовка Authorization
func (v *Verifier) VerifyToken(r *http.Request) (*domain.Caller, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil, fmt.Errorf("expected Bearer <token>: %w", ErrInvalidToken)
	}

	return v.Parse(parts[1])
}

func (v *Verifier) Parse(tokenString string) (*domain.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}

	subject, err := parsed.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("missing sub: %w", ErrInvalidToken)
	}

	role := domain.RoleUser
	if parsed.Role == string(domain.RoleAdmin) {
		role = domain.RoleAdmin
	}
	return &domain.Caller{ID: subject, Role: role}, nil
}

// IssueToken подписывает токен для пользователя. Используется в тестах
// и служебных утилитах; основной выпуск токенов идёт на стороне сервиса аутентификации.
func (v *Verifier) IssueToken(caller domain.Caller) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
		Role: string(caller.Role),
	})
	return token.SignedString(v.secret)
}

// WithCaller кладёт вызывающего в контекст
func WithCaller(ctx context.Context, caller *domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom возвращает вызывающего или nil для гостя
func CallerFrom(ctx context.Context) *domain.Caller {
	caller, _ := ctx.Value(callerKey).(*domain.Caller)
	return caller
}
