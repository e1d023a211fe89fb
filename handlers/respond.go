package handlers

import (
	"log"
	"net/http"
	"strconv"

	"tugofwar/apperr"

	"github.com/gin-gonic/gin"
)

// writeError renders any error as {success:false, reason, message} with the
// status code the error carries. Untyped errors become 500 INTERNAL and the
// cause is logged, never leaked to the client.
func writeError(c *gin.Context, err error) {
	e := apperr.Convert(err)
	if e.Code == apperr.CodeInternal {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		e = apperr.New(apperr.CodeInternal, apperr.ReasonInternal,
			apperr.WithMessagef("internal server error"))
	}
	c.JSON(e.HTTPStatusCode(), gin.H{
		"success": false,
		"reason":  e.Reason,
		"message": e.Message,
	})
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"reason":  apperr.ReasonValidation,
		"message": err.Error(),
	})
}

// currentUserID reads the authenticated user id set by the auth middleware.
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"reason":  apperr.ReasonUnauthorized,
			"message": "user not authenticated",
		})
		return 0, false
	}
	return v.(uint), true
}

// sessionIDParam parses the :id path segment.
func sessionIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"reason":  apperr.ReasonValidation,
			"message": "invalid session ID",
		})
		return 0, false
	}
	return uint(id), true
}
