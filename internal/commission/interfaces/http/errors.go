package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	settingsdomain "github.com/wyfcoding/commissionhub/internal/settings/domain"
	"github.com/wyfcoding/commissionhub/pkg/logger"
)

const (
	kindBadRequest  = "BadRequest"
	kindMaintenance = "Maintenance"
	kindInternal    = "Internal"
)

// statusOf 错误分类到 HTTP 状态码
func statusOf(err error) (int, string) {
	if errors.Is(err, settingsdomain.ErrInvalidValue) {
		return http.StatusUnprocessableEntity, string(domain.KindValidation)
	}
	if errors.Is(err, settingsdomain.ErrNotFound) {
		return http.StatusNotFound, string(domain.KindNotFound)
	}
	switch kind := domain.KindOf(err); kind {
	case domain.KindNotFound:
		return http.StatusNotFound, string(kind)
	case domain.KindInvalidTransition, domain.KindOverlappingPeriod, domain.KindConcurrencyConflict:
		return http.StatusConflict, string(kind)
	case domain.KindValidation, domain.KindInvalidRate, domain.KindInvalidPricingConfig:
		return http.StatusUnprocessableEntity, string(kind)
	}
	return http.StatusInternalServerError, kindInternal
}

func writeError(c *gin.Context, err error) {
	status, kind := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": kind})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": kindBadRequest})
}
