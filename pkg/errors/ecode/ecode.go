package ecode

// 业务错误码，0表示成功
const (
	Success = 0

	// 通用错误 1xxxx
	InternalErr     = 10001
	InvalidParamErr = 10002
	RequireAuthErr  = 10003

	// 信号管道错误 2xxxx
	SignalExpiredErr   = 20001
	SignalDuplicateErr = 20002
	SignalFilteredErr  = 20003
	RiskRejectedErr    = 20004
	ExchangeRejectErr  = 20005
)
