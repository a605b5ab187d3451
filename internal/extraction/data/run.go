package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/database"
	"gorm.io/gorm/clause"
)

// ExtractionRunPO is the extraction_runs row.
type ExtractionRunPO struct {
	ID              string    `gorm:"type:uuid;primarykey"`
	Status          string    `gorm:"column:status;size:20;not null;index:idx_run_status"`
	Source          string    `gorm:"column:source;size:500"`
	Fields          string    `gorm:"column:fields;type:jsonb;not null"`
	Config          string    `gorm:"column:config;type:jsonb;not null"`
	Result          string    `gorm:"column:result;type:jsonb"`
	FailedChunks    string    `gorm:"column:failed_chunks;type:jsonb;not null"`
	ChunksProcessed int       `gorm:"column:chunks_processed;not null;default:0"`
	TotalTokens     int       `gorm:"column:total_tokens;not null;default:0"`
	LLMCalls        int       `gorm:"column:llm_calls;not null;default:0"`
	ProcessingTime  float64   `gorm:"column:processing_time;not null;default:0"`
	ErrorMessage    string    `gorm:"column:error_message;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index:idx_run_created_at"`
	FinishedAt      time.Time `gorm:"column:finished_at"`
}

func (ExtractionRunPO) TableName() string {
	return "extraction_runs"
}

// RunRepo stores runs in PostgreSQL.
type RunRepo struct {
	db *database.DB
}

func NewRunRepo(db *database.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Migrate creates the extraction_runs table when auto migration is on.
func (r *RunRepo) Migrate() error {
	return r.db.AutoMigrate(&ExtractionRunPO{})
}

// Save inserts run, or overwrites the row with the same id.
func (r *RunRepo) Save(ctx context.Context, run *biz.Run) error {
	po, err := toRunPO(run)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).GetDB().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*biz.Run, error) {
	var po ExtractionRunPO
	err := r.db.WithContext(ctx).GetDB().Where("id = ?", id).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return toRun(&po)
}

// List returns one page of runs, newest first, and the total number of runs.
func (r *RunRepo) List(ctx context.Context, page, pageSize int) ([]*biz.Run, int64, error) {
	db := r.db.WithContext(ctx).GetDB().Model(&ExtractionRunPO{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	var pos []ExtractionRunPO
	err := db.Scopes(database.Paginate(page, pageSize)).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*biz.Run, 0, len(pos))
	for i := range pos {
		run, err := toRun(&pos[i])
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, nil
}

func toRunPO(run *biz.Run) (*ExtractionRunPO, error) {
	fields, err := marshalJSON(run.Config.Fields, "[]")
	if err != nil {
		return nil, err
	}
	config, err := marshalJSON(run.Config, "{}")
	if err != nil {
		return nil, err
	}
	failed, err := marshalJSON(run.FailedChunks, "[]")
	if err != nil {
		return nil, err
	}
	result := ""
	if run.Result != nil {
		if result, err = marshalJSON(run.Result, ""); err != nil {
			return nil, err
		}
	}

	return &ExtractionRunPO{
		ID:              run.ID,
		Status:          run.Status,
		Source:          run.Source,
		Fields:          fields,
		Config:          config,
		Result:          result,
		FailedChunks:    failed,
		ChunksProcessed: run.Metrics.ChunksProcessed,
		TotalTokens:     run.Metrics.TotalTokens,
		LLMCalls:        run.Metrics.LLMCalls,
		ProcessingTime:  run.Metrics.ProcessingTime,
		ErrorMessage:    run.Error,
		CreatedAt:       run.CreatedAt,
		FinishedAt:      run.FinishedAt,
	}, nil
}

func toRun(po *ExtractionRunPO) (*biz.Run, error) {
	run := &biz.Run{
		ID:     po.ID,
		Status: po.Status,
		Source: po.Source,
		Metrics: biz.Metrics{
			ChunksProcessed: po.ChunksProcessed,
			TotalTokens:     po.TotalTokens,
			LLMCalls:        po.LLMCalls,
			ProcessingTime:  po.ProcessingTime,
		},
		Error:        po.ErrorMessage,
		CreatedAt:    po.CreatedAt,
		FinishedAt:   po.FinishedAt,
		FailedChunks: []int{},
	}

	if po.Config != "" {
		if err := json.Unmarshal([]byte(po.Config), &run.Config); err != nil {
			return nil, fmt.Errorf("decode run %s config: %w", po.ID, err)
		}
	}
	if po.FailedChunks != "" {
		if err := json.Unmarshal([]byte(po.FailedChunks), &run.FailedChunks); err != nil {
			return nil, fmt.Errorf("decode run %s failed chunks: %w", po.ID, err)
		}
	}
	if po.Result != "" {
		var result types.Result
		if err := json.Unmarshal([]byte(po.Result), &result); err != nil {
			return nil, fmt.Errorf("decode run %s result: %w", po.ID, err)
		}
		run.Result = &result
	}
	return run, nil
}

func marshalJSON(v interface{}, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
