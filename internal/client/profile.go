package client

import (
	"context"

	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/models"
)

const fallbackAvatar = "https://images.unsplash.com/photo-1556557286-bf3be5fd9d06?w=150&h=150&fit=crop&crop=face"

// LoadProfile fetches the signed-in user's profile. When the server answers
// with an error the session metadata stands in for it and degraded is true,
// so a user with a valid session is never locked out by a missing profile.
// Transport failures are returned as errors.
func (c *Client) LoadProfile(ctx context.Context, session identity.Session) (user models.User, degraded bool, err error) {
	if session.AccessToken != "" {
		c.SetToken(session.AccessToken)
	}
	u, err := c.GetUser(ctx, session.User.ID)
	if err == nil {
		return u, false, nil
	}
	if StatusOf(err) == 0 {
		return models.User{}, false, err
	}
	return FallbackProfile(session.User), true, nil
}

// FallbackProfile builds a profile from identity metadata alone.
func FallbackProfile(au identity.AuthUser) models.User {
	meta := au.Metadata
	str := func(key, def string) string {
		if s, ok := meta[key].(string); ok && s != "" {
			return s
		}
		return def
	}

	interests := []string{}
	if raw, ok := meta["interests"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				interests = append(interests, s)
			}
		}
	}

	return models.User{
		ID:          au.ID,
		Name:        str("name", "User"),
		Email:       au.Email,
		Type:        models.UserType(str("type", string(models.UserTypeCreator))),
		Interests:   interests,
		Personality: str("personality", ""),
		Avatar:      fallbackAvatar,
		Rating:      5.0,
	}
}
