package postgres

import (
	"github.com/plateforge/auth-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Users    ports.UserRepository
	Sessions ports.SessionRepository
	Audit    ports.AuditLogRepository
	Jobs     ports.JobRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:    &userRepository{db: db},
		Sessions: &sessionRepository{db: db},
		Audit:    &auditLogRepository{db: db},
		Jobs:     &jobRepository{db: db},
	}
}
