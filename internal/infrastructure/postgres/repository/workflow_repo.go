package repository

import (
	"context"
	"errors"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/mappers"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultWorkflowRepository stores workflow runs and their journals.
type DefaultWorkflowRepository struct {
	DB *gorm.DB
}

func NewDefaultWorkflowRepository(db *gorm.DB) *DefaultWorkflowRepository {
	return &DefaultWorkflowRepository{DB: db}
}

func (r *DefaultWorkflowRepository) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(mappers.ToGORMWorkflowRun(run))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWorkflowAlreadyStarted
	}
	return nil
}

func (r *DefaultWorkflowRepository) GetRun(ctx context.Context, key string) (*domain.WorkflowRun, error) {
	var model models.WorkflowRunModel
	err := r.DB.WithContext(ctx).First(&model, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return mappers.ToDomainWorkflowRun(&model), nil
}

func (r *DefaultWorkflowRepository) CloseRun(ctx context.Context, key string, status domain.RunStatus, result, errMsg string) error {
	res := r.DB.WithContext(ctx).
		Model(&models.WorkflowRunModel{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"status":     status,
			"result":     result,
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWorkflowNotFound
	}
	return nil
}

func (r *DefaultWorkflowRepository) ListOpenRuns(ctx context.Context) ([]*domain.WorkflowRun, error) {
	var runModels []models.WorkflowRunModel
	if err := r.DB.WithContext(ctx).
		Where("status = ?", domain.RunRunning).
		Order("created_at ASC").
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*domain.WorkflowRun, len(runModels))
	for i := range runModels {
		runs[i] = mappers.ToDomainWorkflowRun(&runModels[i])
	}
	return runs, nil
}

// AppendEvent relies on the partial unique index over (key, kind, name) for
// non-signal events: a second write of the same activity result is dropped.
func (r *DefaultWorkflowRepository) AppendEvent(ctx context.Context, event *domain.HistoryEvent) error {
	model := mappers.ToGORMHistoryEvent(event)
	if event.Kind == domain.EventSignal {
		return r.DB.WithContext(ctx).Create(model).Error
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "key"}, {Name: "kind"}, {Name: "name"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Neq{Column: "kind", Value: domain.EventSignal}}},
			DoNothing:   true,
		}).
		Create(model).Error
}

func (r *DefaultWorkflowRepository) ListEvents(ctx context.Context, key string) ([]*domain.HistoryEvent, error) {
	var eventModels []models.WorkflowEventModel
	if err := r.DB.WithContext(ctx).
		Where("key = ?", key).
		Order("seq ASC").
		Find(&eventModels).Error; err != nil {
		return nil, err
	}

	events := make([]*domain.HistoryEvent, len(eventModels))
	for i := range eventModels {
		events[i] = mappers.ToDomainHistoryEvent(&eventModels[i])
	}
	return events, nil
}
