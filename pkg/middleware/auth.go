package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	ProfileHeader = "X-Profile-ID"
	StaffHeader   = "X-Staff-Role"

	profileKey = "profile_id"
)

// Identity trusts the profile id set by the gateway after authentication.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ProfileHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			logrus.WithField("header", raw).Warn("request without a valid profile id")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "profile id is required in '" + ProfileHeader + "' header"})
			return
		}
		c.Set(profileKey, id)
		c.Next()
	}
}

func ProfileID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(profileKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// StaffOnly lets through requests the gateway marked with the given staff role.
func StaffOnly(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(StaffHeader) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "access denied"})
			return
		}
		c.Next()
	}
}
