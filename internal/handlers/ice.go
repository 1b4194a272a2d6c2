package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tanglechat/rtc-signaling/internal/models"
	"github.com/tanglechat/rtc-signaling/internal/turn"
)

// ListICEServers returns the public ICE server list. This path is
// unauthenticated and must stay credential-free: the response type carries
// URLs only. TURN credentials are issued exclusively by IssueTurnCredentials.
func ListICEServers(broker *turn.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": broker.PublicServers()})
	}
}

// IssueTurnCredentials returns ephemeral TURN credentials bound to the
// authenticated user. Issuance failure is loud (distinct kind) so clients
// can fall back to STUN-only or abort with a clear diagnosis instead of
// silently losing relay connectivity.
func IssueTurnCredentials(broker *turn.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		creds, err := broker.Issue(userID.(string))
		if err != nil {
			if errors.Is(err, turn.ErrIssuanceUnavailable) {
				log.Printf("TURN credential issuance unavailable for user %s", userID)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": models.ErrorBody{
					Kind:    models.ErrKindCredentialFailed,
					Message: "TURN credential issuance unavailable",
				}})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": models.ErrorBody{
				Kind:    models.ErrKindCredentialFailed,
				Message: "failed to issue TURN credentials",
			}})
			return
		}

		// Deliberately not logging the credential fields.
		c.JSON(http.StatusOK, models.TurnCredentialsResponse{
			Username:   creds.Username,
			Credential: creds.Credential,
			ExpiresAt:  creds.ExpiresAt,
			URIs:       creds.URIs,
		})
	}
}
