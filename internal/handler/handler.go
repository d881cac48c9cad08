package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/service"
	"github.com/gSa1fe/isusP-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

type TopupUsecase interface {
	Submit(ctx context.Context, req *service.SubmitTopupRequest) (*model.TopupRequest, error)
	Cancel(ctx context.Context, topupNo string, userID int64) (*model.TopupRequest, error)
	Get(ctx context.Context, topupNo string, actor service.Actor) (*model.TopupRequest, error)
	List(ctx context.Context, q service.ListTopupsQuery) ([]*model.TopupRequest, int64, error)
}

type SettlementUsecase interface {
	Approve(ctx context.Context, topupNo string, admin service.Actor) (*service.SettlementResult, error)
	Reject(ctx context.Context, topupNo string, admin service.Actor, reason string) (*model.TopupRequest, error)
}

type LedgerUsecase interface {
	Debit(ctx context.Context, userID, coins int64, referenceID, description string) (*model.CoinTransaction, error)
	Adjust(ctx context.Context, admin service.Actor, userID int64, txType string, amount int64, reason string) (*model.CoinTransaction, error)
	List(ctx context.Context, userID int64, txType string, page, pageSize int) ([]*model.CoinTransaction, int64, error)
}

type WalletUsecase interface {
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	VerifyLedger(ctx context.Context, userID int64) (*service.LedgerReport, error)
}

type PackageCatalog interface {
	List() []model.CoinPackage
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	topups     TopupUsecase
	settlement SettlementUsecase
	ledger     LedgerUsecase
	wallet     WalletUsecase
	packages   PackageCatalog
}

func NewHandler(topups TopupUsecase, settlement SettlementUsecase, ledger LedgerUsecase, wallet WalletUsecase, packages PackageCatalog) *Handler {
	return &Handler{
		topups:     topups,
		settlement: settlement,
		ledger:     ledger,
		wallet:     wallet,
		packages:   packages,
	}
}

// writeError 业务错误统一映射成响应码，存储异常不把细节暴露给调用方
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPackageNotAvailable):
		response.BusinessError(c, response.CodePackageNotAvailable, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.BusinessError(c, response.CodeValidationFailed, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.BusinessError(c, response.CodeTopupNotFound, err.Error())
	case errors.Is(err, service.ErrTooManyPending):
		response.BusinessError(c, response.CodeTooManyPending, err.Error())
	case errors.Is(err, service.ErrNotCancellable):
		response.BusinessError(c, response.CodeNotCancellable, err.Error())
	case errors.Is(err, service.ErrAlreadyProcessed):
		response.BusinessError(c, response.CodeAlreadyProcessed, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	default:
		response.ServerError(c, "系统繁忙，请稍后重试")
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return service.NormalizePage(page, pageSize)
}

// ============================================================
// 充值申请
// ============================================================

// SubmitTopup 提交充值申请
// POST /api/v1/topups
func (h *Handler) SubmitTopup(c *gin.Context) {
	var req service.SubmitTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = currentActor(c).UserID

	topup, err := h.topups.Submit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, topup)
}

// CancelTopup 取消自己的待审核申请
// POST /api/v1/topups/:topup_no/cancel
func (h *Handler) CancelTopup(c *gin.Context) {
	topup, err := h.topups.Cancel(c.Request.Context(), c.Param("topup_no"), currentActor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, topup)
}

// GetTopup 查询充值申请详情
// GET /api/v1/topups/:topup_no
func (h *Handler) GetTopup(c *gin.Context) {
	topup, err := h.topups.Get(c.Request.Context(), c.Param("topup_no"), currentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, topup)
}

// ListMyTopups 查询自己的充值申请
// GET /api/v1/topups?status=pending&page=1&page_size=20
func (h *Handler) ListMyTopups(c *gin.Context) {
	userID := currentActor(c).UserID
	h.listTopups(c, &userID)
}

// ListAllTopups 管理员查询充值申请，user_id 可选
// GET /api/v1/admin/topups?user_id=xxx&status=pending
func (h *Handler) ListAllTopups(c *gin.Context) {
	var userID *int64
	if s := c.Query("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			response.ParamError(c, "user_id 参数错误")
			return
		}
		userID = &id
	}
	h.listTopups(c, userID)
}

func (h *Handler) listTopups(c *gin.Context, userID *int64) {
	page, pageSize := pageParams(c)

	list, total, err := h.topups.List(c.Request.Context(), service.ListTopupsQuery{
		UserID:   userID,
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Page(c, list, total, page, pageSize)
}

// ============================================================
// 审批
// ============================================================

// ApproveTopup 审批通过并入账
// POST /api/v1/admin/topups/:topup_no/approve
func (h *Handler) ApproveTopup(c *gin.Context) {
	result, err := h.settlement.Approve(c.Request.Context(), c.Param("topup_no"), currentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

type RejectTopupRequest struct {
	Reason string `json:"reason" binding:"required,max=512"`
}

// RejectTopup 驳回充值申请
// POST /api/v1/admin/topups/:topup_no/reject
func (h *Handler) RejectTopup(c *gin.Context) {
	var req RejectTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	topup, err := h.settlement.Reject(c.Request.Context(), c.Param("topup_no"), currentActor(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, topup)
}

// ============================================================
// 钱包与流水
// ============================================================

// GetWallet 查询钱包
// GET /api/v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.wallet.GetWallet(c.Request.Context(), currentActor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, wallet)
}

// ListTransactions 查询自己的流水
// GET /api/v1/wallet/transactions?type=topup&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)

	list, total, err := h.ledger.List(c.Request.Context(), currentActor(c).UserID, c.Query("type"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Page(c, list, total, page, pageSize)
}

// ListPackages 充值套餐
// GET /api/v1/coin-packages
func (h *Handler) ListPackages(c *gin.Context) {
	response.Success(c, h.packages.List())
}

type PurchaseRequest struct {
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	Coins       int64  `json:"coins" binding:"required,gt=0"`
	ReferenceID string `json:"reference_id" binding:"required,max=64"` // 内容服务的购买订单号
	Description string `json:"description" binding:"max=256"`
}

// Purchase 内容购买扣款，由内容服务调用
// POST /api/v1/ledger/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.ledger.Debit(c.Request.Context(), req.UserID, req.Coins, req.ReferenceID, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, entry)
}

type AdjustRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Type   string `json:"type" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required,max=256"`
}

// AdjustLedger 管理员补偿流水
// POST /api/v1/admin/ledger/adjust
func (h *Handler) AdjustLedger(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.ledger.Adjust(c.Request.Context(), currentActor(c), req.UserID, req.Type, req.Amount, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, entry)
}

// VerifyWallet 校验用户流水
// GET /api/v1/admin/wallets/:user_id/verify
func (h *Handler) VerifyWallet(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	report, err := h.wallet.VerifyLedger(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, report)
}
