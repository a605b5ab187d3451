package service

import (
	"errors"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/loader"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	apperrors "github.com/lk2023060901/llm-field-extractor/internal/pkg/errors"
)

// toAppError maps pipeline errors onto business codes.
func toAppError(err error) *apperrors.AppError {
	var (
		appErr    *apperrors.AppError
		cfgErr    *types.ConfigError
		allFailed *types.AllChunksFailedError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &cfgErr):
		return apperrors.Wrap(err, apperrors.ErrInvalidInput, cfgErr.Error())
	case errors.As(err, &allFailed):
		return apperrors.NewLLMError(err)
	case errors.Is(err, types.ErrRunCancelled):
		return apperrors.Wrap(err, apperrors.ErrRequestTimeout)
	case errors.Is(err, biz.ErrRunNotFound):
		return apperrors.Wrap(err, apperrors.ErrNotFound, "extraction run")
	case errors.Is(err, biz.ErrRunHistoryDisabled), errors.Is(err, biz.ErrModelsUnsupported):
		return apperrors.Wrap(err, apperrors.ErrServiceUnavail, err.Error())
	case errors.Is(err, loader.ErrUnsupportedType):
		return apperrors.Wrap(err, apperrors.ErrUnsupportedFmt)
	case errors.Is(err, loader.ErrEmptyFile):
		return apperrors.Wrap(err, apperrors.ErrInvalidInput, "uploaded file has no readable text")
	default:
		return apperrors.NewProcessingError(err)
	}
}
