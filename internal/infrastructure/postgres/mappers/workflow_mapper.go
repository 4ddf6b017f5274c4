package mappers

import (
	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/models"
)

func ToDomainWorkflowRun(model *models.WorkflowRunModel) *domain.WorkflowRun {
	return &domain.WorkflowRun{
		Key:       model.Key,
		RunID:     model.RunID,
		Type:      model.Type,
		Input:     model.Input,
		Status:    model.Status,
		Result:    model.Result,
		Error:     model.Error,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func ToGORMWorkflowRun(run *domain.WorkflowRun) *models.WorkflowRunModel {
	return &models.WorkflowRunModel{
		Key:       run.Key,
		RunID:     run.RunID,
		Type:      run.Type,
		Input:     run.Input,
		Status:    run.Status,
		Result:    run.Result,
		Error:     run.Error,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
}

func ToDomainHistoryEvent(model *models.WorkflowEventModel) *domain.HistoryEvent {
	return &domain.HistoryEvent{
		Key:       model.Key,
		Kind:      model.Kind,
		Name:      model.Name,
		Payload:   model.Payload,
		CreatedAt: model.CreatedAt,
	}
}

func ToGORMHistoryEvent(event *domain.HistoryEvent) *models.WorkflowEventModel {
	return &models.WorkflowEventModel{
		Key:       event.Key,
		Kind:      event.Kind,
		Name:      event.Name,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}
}
