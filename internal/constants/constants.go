package constants

// 捐赠状态常量
const (
	DonationStatusPending = "pending"
	DonationStatusSuccess = "success"
	DonationStatusFailed  = "failed"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// PayU 网关常量
const (
	// PayUStatusSuccess 网关成功状态（大小写敏感，精确匹配）
	PayUStatusSuccess = "success"
	// PayUStatusPending 网关处理中状态
	PayUStatusPending = "pending"
	// PayUTxnPrefix 交易号前缀
	PayUTxnPrefix = "TXN"
	// PayUUDFCount 透传字段数量（udf1..udf5）
	PayUUDFCount = 5
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskDonationReceiptEmail = "donation:receipt_email"
	TaskPaymentAlert         = "payment:alert"
)

// 验证码场景常量
const (
	CaptchaSceneRegister = "register"
)
