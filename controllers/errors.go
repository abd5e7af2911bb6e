package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// CustomError -> error validasi request di level HTTP
type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

var (
	ErrInvalidID = &CustomError{"Invalid id parameter"}
	ErrInternal  = &CustomError{"Internal server error"}
)

// statusFor -> kode HTTP untuk error domain
func statusFor(se *services.Error) int {
	switch se.Kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindRateLimited:
		return http.StatusTooManyRequests
	case services.KindConflict:
		return http.StatusConflict
	case services.KindInvalidState:
		switch {
		case errors.Is(se, services.ErrInvalidSession):
			return http.StatusUnauthorized
		case errors.Is(se, services.ErrCodeMismatch), errors.Is(se, services.ErrCodeExpired),
			errors.Is(se, services.ErrItemUnavailable):
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondServiceError -> render error service dengan envelope standar.
// Error infrastruktur dicatat dan dikembalikan sebagai 500 tanpa detail.
func respondServiceError(c *gin.Context, err error) {
	se := services.AsError(err)
	if se == nil {
		utils.ErrorLogger.WithField("path", c.FullPath()).Errorf("Unhandled error: %v", err)
		_ = c.Error(err)
		utils.RespondError(c, http.StatusInternalServerError, ErrInternal)
		return
	}

	data := gin.H{"code": se.Code}
	if se.RetryAfter > 0 {
		data["retry_after"] = se.RetryAfter
		c.Header("Retry-After", strconv.Itoa(se.RetryAfter))
	}
	if se.Current != "" {
		data["current"] = se.Current
		data["attempted"] = se.Attempted
	}
	utils.RespondErrorWithData(c, statusFor(se), se, data)
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, ErrInvalidID)
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.RespondErrorWithData(c, http.StatusBadRequest, err, gin.H{"code": services.ErrValidation.Code})
		return false
	}
	return true
}
