package jwttoken

import (
	"namereg/pkg/platform/middleware/auth"
)

// AuthAdapter adapts JWTService to the auth middleware's validator interface.
type AuthAdapter struct {
	service *JWTService
}

func NewAuthAdapter(service *JWTService) *AuthAdapter {
	return &AuthAdapter{service: service}
}

func (a *AuthAdapter) ValidateToken(tokenString string) (*auth.Claims, error) {
	address, err := a.service.ExtractAddressFromToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{Address: address}, nil
}
