package database

import (
	"github.com/hubwatch/reputeer/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	reputation *models.ReputationModel
	audit      *models.AuditModel
	weight     *models.WeightModel
	policy     *models.PolicyModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	audit := models.NewAudit(db, logger)

	return &Repository{
		reputation: models.NewReputation(db, audit, logger),
		audit:      audit,
		weight:     models.NewWeight(db, logger),
		policy:     models.NewPolicy(db, logger),
	}
}

// Reputation returns the reputation model repository.
func (r *Repository) Reputation() *models.ReputationModel {
	return r.reputation
}

// Audit returns the audit model repository.
func (r *Repository) Audit() *models.AuditModel {
	return r.audit
}

// Weight returns the weight config model repository.
func (r *Repository) Weight() *models.WeightModel {
	return r.weight
}

// Policy returns the policy model repository.
func (r *Repository) Policy() *models.PolicyModel {
	return r.policy
}
