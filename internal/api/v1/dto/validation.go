package dto

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"ai-subtitler/internal/app/model"
)

// SupportedLanguages are the transcription languages accepted on upload.
var SupportedLanguages = []string{"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh", "ar", "hi", "bn", "ur"}

// SupportedMediaTypes are the accepted upload content types.
var SupportedMediaTypes = []string{"video/mp4", "video/x-msvideo", "audio/wav", "audio/mpeg"}

// IsSupportedMediaType ignores parameters such as "; codecs=...".
func IsSupportedMediaType(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	return lo.Contains(SupportedMediaTypes, strings.ToLower(strings.TrimSpace(base)))
}

// RegisterValidators installs the custom binding tags on gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("subtitle_lang", func(fl validator.FieldLevel) bool {
		return lo.Contains(SupportedLanguages, strings.ToLower(fl.Field().String()))
	}); err != nil {
		return err
	}
	return v.RegisterValidation("job_status", func(fl validator.FieldLevel) bool {
		return model.JobStatus(strings.ToLower(fl.Field().String())).IsValid()
	})
}
