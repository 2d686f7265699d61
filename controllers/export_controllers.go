package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
)

type ExportController struct {
	Orders         *services.OrderService
	FilenamePrefix string
}

func NewExportController(orders *services.OrderService, filenamePrefix string) *ExportController {
	return &ExportController{Orders: orders, FilenamePrefix: filenamePrefix}
}

// ExportOrders -> CSV download of completed and cancelled orders
func (ec *ExportController) ExportOrders(c *gin.Context) {
	loc := ec.Orders.Location()

	var (
		f   services.ExportFilter
		err error
	)
	if f.From, err = services.ParseTimeBound(c.Query("from"), loc, false); err != nil {
		respondServiceError(c, err, "failed to export orders")
		return
	}
	if f.To, err = services.ParseTimeBound(c.Query("to"), loc, true); err != nil {
		respondServiceError(c, err, "failed to export orders")
		return
	}
	if raw := c.Query("range"); raw != "" && f.From == nil && f.To == nil {
		dateRange, err := services.ParseDateFilter(raw)
		if err != nil {
			respondServiceError(c, err, "failed to export orders")
			return
		}
		f.From, f.To = dateRange.Bounds(time.Now(), loc)
	}

	// buffered so a failure can still be answered with a JSON error
	var buf bytes.Buffer
	rows, err := ec.Orders.ExportOrders(c.Request.Context(), &buf, f)
	if err != nil {
		respondServiceError(c, err, "failed to export orders")
		return
	}

	utils.InfoLogger.Infof("Exported %d order rows", rows)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ec.Orders.ExportFilename(ec.FilenamePrefix)))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
