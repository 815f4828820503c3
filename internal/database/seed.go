package database

import (
	"log"

	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/config"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// SeedAdmin makes sure at least one admin account exists so the
// back-office endpoints are reachable on a fresh database.
func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role IN ?", []models.Role{models.RoleAdmin, models.RoleSuperAdmin}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email := cfg.AdminEmail
	if email == "" {
		email = "admin@example.com"
	}
	fullName := cfg.AdminFullName
	if fullName == "" {
		fullName = "Administrator"
	}

	admin := models.User{
		FullName: fullName,
		Email:    email,
		Role:     models.RoleSuperAdmin,
		Active:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return err
	}
	log.Println("Seeded initial admin:", email)
	return nil
}
