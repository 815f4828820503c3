package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/batch"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

type BatchController struct {
	DB        *gorm.DB
	Allocator *batch.Allocator
}

type allocateRequest struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	// Grade falls back to the student's stored grade when omitted.
	Grade FlexibleString `json:"grade"`
}

type allocationResponse struct {
	batch.Allocation
	Error string `json:"error,omitempty"`
}

// Allocate seats a student in one batch per subject of their grade.
func (bc *BatchController) Allocate(c *gin.Context) {
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	grade := req.Grade.String()
	if grade == "" {
		var student models.User
		err := bc.DB.WithContext(c.Request.Context()).Select("id", "grade").
			Where("id = ? AND role = ?", req.StudentID, models.RoleStudent).First(&student).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		grade = student.Grade
	}

	allocs, err := bc.Allocator.AllocateStudentToBatches(c.Request.Context(), req.StudentID, grade)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]allocationResponse, 0, len(allocs))
	failed := 0
	for _, a := range allocs {
		r := allocationResponse{Allocation: a}
		if a.Err != nil {
			r.Error = a.Err.Error()
			failed++
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "failed": failed})
}

type assignRequest struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
}

// Assign places a student in a specific batch.
func (bc *BatchController) Assign(c *gin.Context) {
	batchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := bc.Allocator.Assign(c.Request.Context(), req.StudentID, batchID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "student assigned"})
}

// Distribute fills a subject's batches with its unassigned students.
func (bc *BatchController) Distribute(c *gin.Context) {
	subjectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := bc.Allocator.DistributeStudents(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res, "unassigned": res.Unassigned()})
}
