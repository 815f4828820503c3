package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/lifecycle"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/middleware"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

type ClassController struct {
	DB        *gorm.DB
	Lifecycle *lifecycle.Scheduler
}

// End completes a live class. Instructors may only end their own classes.
func (cc *ClassController) End(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)
	if !user.Role.IsAdmin() {
		var class models.Class
		if err := cc.DB.WithContext(c.Request.Context()).Select("id", "instructor_id").Where("id = ?", id).First(&class).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
				return
			}
			respondError(c, err)
			return
		}
		if class.InstructorID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your class"})
			return
		}
	}
	if err := cc.Lifecycle.EndClass(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "class ended"})
}
