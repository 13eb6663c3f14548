package media

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/constants"
)

// VideoGrant is the room permission block understood by LiveKit servers
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// AccessClaims are the JWT claims of a room access token
type AccessClaims struct {
	Name     string      `json:"name,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
	Video    *VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

// LiveKitIssuer signs room access tokens with the media server API key pair
type LiveKitIssuer struct {
	url       string
	apiKey    string
	apiSecret string
	ttl       time.Duration
	now       func() time.Time
}

// NewLiveKitIssuer creates a media session issuer
func NewLiveKitIssuer(url, apiKey, apiSecret string, ttl time.Duration) (*LiveKitIssuer, error) {
	if url == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("media url, api key and api secret are required")
	}
	if ttl <= 0 {
		ttl = constants.MediaTokenTTL
	}
	return &LiveKitIssuer{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Issue returns a join credential for the requested room
func (i *LiveKitIssuer) Issue(ctx context.Context, req domain.MediaSessionRequest) (*domain.MediaSession, error) {
	if req.RoomName == "" || req.Identity == "" {
		return nil, fmt.Errorf("room name and identity are required")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &AccessClaims{
		Name:     req.DisplayName,
		Metadata: req.Metadata,
		Video: &VideoGrant{
			Room:           req.RoomName,
			RoomJoin:       true,
			RoomAdmin:      req.IsHost,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   req.Identity,
			ID:        req.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign media token: %w", err)
	}

	return &domain.MediaSession{
		RoomName:  req.RoomName,
		Token:     token,
		URL:       i.url,
		ExpiresAt: expiresAt,
	}, nil
}
