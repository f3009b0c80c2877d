package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/gin-gonic/gin"

	"signalflow/conf"
	"signalflow/internal/consts"
	"signalflow/internal/ingest"
	"signalflow/internal/model"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/logger"
	"signalflow/pkg/response"
)

type Handler struct {
	cfg conf.WebhookConfig
	svc *ingest.Service
}

func NewHandler(cfg conf.WebhookConfig, svc *ingest.Service) *Handler {
	return &Handler{cfg: cfg, svc: svc}
}

// HandleWebhook 信号源回调入口。
// 鉴权：X-Token头或token参数必须等于共享密钥；
// 配置了签名密钥时再校验 X-Signature (HMAC-SHA256)。
func (h *Handler) HandleWebhook() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := ctx.GetHeader(consts.WebhookTokenHeader)
		if token == "" {
			token = ctx.Query(consts.WebhookTokenQuery)
		}
		if token != h.cfg.Token {
			response.RequireAuthErr(ctx, errors.New(ecode.RequireAuthErr, "bad webhook token"))
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			response.BadRequests(ctx, "failed to read body")
			return
		}

		if h.cfg.SigningSecret != "" {
			if !h.verifySignature(body, ctx.GetHeader(consts.WebhookSignHeader)) {
				response.RequireAuthErr(ctx, errors.New(ecode.RequireAuthErr, "bad signature"))
				return
			}
		}

		// 放回body让binding校验走一遍
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))
		var req model.WebhookRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.InvalidParamErr, "invalid webhook payload"), nil)
			return
		}

		published, err := h.svc.Handle(ctx.Request.Context(), &req, body)
		if err != nil {
			code, _ := errors.DecodeErr(err)
			switch code {
			case ecode.SignalDuplicateErr:
				// 源端重发不算错，回200防止无限重试
				response.JSON(ctx, nil, gin.H{"duplicate": true})
			case ecode.SignalFilteredErr:
				response.JSON(ctx, nil, gin.H{"filtered": true})
			default:
				response.JSON(ctx, err, nil)
			}
			return
		}

		logger.Info("webhook accepted",
			logger.Pair("signalId", req.ID),
			logger.Pair("symbol", req.Symbol),
			logger.Pair("published", published))
		response.JSON(ctx, nil, gin.H{"published": published})
	}
}

func (h *Handler) verifySignature(body []byte, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(h.cfg.SigningSecret))
	mac.Write(body)
	expected := mac.Sum(nil)
	provided, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, expected)
}
