package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ContextUserID is the gin context key holding the caller's user id.
const ContextUserID = "userId"

var errNoToken = errors.New("no authorization token provided")

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
	logger *zap.Logger
}

func NewAuth(secret string, logger *zap.Logger) *Auth {
	return &Auth{secret: []byte(secret), logger: logger}
}

// IssueToken signs an HS256 token for userID.
func (a *Auth) IssueToken(userID primitive.ObjectID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates tokenString and returns the user id it carries.
func (a *Auth) Parse(tokenString string) (primitive.ObjectID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return primitive.NilObjectID, err
	}
	if !token.Valid {
		return primitive.NilObjectID, errors.New("token is not valid")
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("token user id: %w", err)
	}
	return id, nil
}

func bearer(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errNoToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("format should be: Bearer <token>")
	}
	return parts[1], nil
}

// Required rejects requests without a valid token.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		// CORS preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, err := bearer(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": err.Error(),
			})
			return
		}

		userID, err := a.Parse(token)
		if err != nil {
			a.logger.Debug("JWT validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"message": "Token validation failed",
			})
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// Optional identifies the caller when a valid token is present and lets the
// request through either way.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := bearer(c); err == nil {
			if userID, err := a.Parse(token); err == nil {
				c.Set(ContextUserID, userID)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated caller, if any.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok
}
