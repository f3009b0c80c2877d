package position

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"signalflow/internal/consts"
	"signalflow/internal/dao"
	"signalflow/internal/executor"
	"signalflow/internal/model"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/response"
)

// Handler 持仓与订单的只读查询，外加手动平仓
type Handler struct {
	positions *dao.PositionDao
	orders    *dao.OrderDao
	exec      *executor.Executor
}

func NewHandler(positions *dao.PositionDao, orders *dao.OrderDao, exec *executor.Executor) *Handler {
	return &Handler{positions: positions, orders: orders, exec: exec}
}

// PositionsGetOpen 当前所有open仓位
func (h *Handler) PositionsGetOpen() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		open, err := h.positions.ListOpen(ctx.Request.Context())
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.InternalErr, "list positions"), nil)
			return
		}
		response.JSON(ctx, nil, open)
	}
}

// OrderGet 订单详情，带完整的状态迁移历史
func (h *Handler) OrderGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, err := cast.ToInt64E(ctx.Param("id"))
		if err != nil {
			response.BadRequests(ctx, "invalid order id")
			return
		}
		order, err := h.orders.Get(ctx.Request.Context(), id)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.InternalErr, "order not found"), nil)
			return
		}
		events, err := h.orders.Events(ctx.Request.Context(), id)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.InternalErr, "order events"), nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"order": order, "events": events})
	}
}

// PositionClose 手动平仓
func (h *Handler) PositionClose() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, err := cast.ToInt64E(ctx.Param("id"))
		if err != nil {
			response.BadRequests(ctx, "invalid position id")
			return
		}
		pos, err := h.positions.Get(ctx.Request.Context(), id)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.InternalErr, "position not found"), nil)
			return
		}
		if pos.Status != model.PositionOpen {
			response.BadRequests(ctx, "position already closed")
			return
		}
		if err := h.exec.SubmitClose(ctx.Request.Context(), pos, consts.CloseReasonManual); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.InternalErr, "close position"), nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"closed": true})
	}
}
