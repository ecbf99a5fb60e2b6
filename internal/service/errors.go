package service

import "errors"

// 服务层错误定义，处理器通过 errors.Is 映射到 HTTP 响应
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrEmailExists        = errors.New("email already registered")
	ErrUserDisabled       = errors.New("user disabled")
	ErrTooManyAttempts    = errors.New("too many attempts")

	ErrCaptchaRequired = errors.New("captcha required")
	ErrCaptchaInvalid  = errors.New("captcha invalid")

	ErrDonationNotFound      = errors.New("donation not found")
	ErrDonationAmountInvalid = errors.New("donation amount invalid")
	ErrDonationStoreFailed   = errors.New("donation store failed")
	ErrGatewayNotConfigured  = errors.New("payment gateway not configured")

	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
)
