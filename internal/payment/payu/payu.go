package payu

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/daan-setu/internal/constants"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid      = errors.New("payu config invalid")
	ErrAmountInvalid      = errors.New("payu amount invalid")
	ErrSignatureInvalid   = errors.New("payu signature invalid")
	ErrMissingCorrelation = errors.New("payu callback missing donation reference")
)

// Config PayU 网关配置
type Config struct {
	MerchantKey  string `json:"merchant_key"`  // 商户 key（参与签名，随表单明文提交）
	MerchantSalt string `json:"merchant_salt"` // 商户 salt（签名密钥，绝不出现在响应中）
	GatewayURL   string `json:"gateway_url"`   // 支付表单提交地址
	CallbackURL  string `json:"callback_url"`  // surl/furl 回调地址
	ProductName  string `json:"product_name"`  // productinfo 前缀
}

// ValidateConfig 校验网关配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantKey) == "" {
		return fmt.Errorf("%w: merchant_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantSalt) == "" {
		return fmt.Errorf("%w: merchant_salt is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return fmt.Errorf("%w: gateway_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return fmt.Errorf("%w: callback_url is required", ErrConfigInvalid)
	}
	return nil
}

// CreateInput 发起支付输入
type CreateInput struct {
	DonationNo string
	Amount     decimal.Decimal
	Firstname  string
	Email      string
	Phone      string
}

// PaymentParams PayU v1 支付表单字段
//
// 字段集合与顺序是网关的线协议，前端原样提交，不得增删。
type PaymentParams struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	TxnID       string `json:"txnid"`
	Amount      string `json:"amount"`
	ProductInfo string `json:"productinfo"`
	Firstname   string `json:"firstname"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	SURL        string `json:"surl"`
	FURL        string `json:"furl"`
	UDF1        string `json:"udf1"`
	UDF2        string `json:"udf2"`
	UDF3        string `json:"udf3"`
	UDF4        string `json:"udf4"`
	UDF5        string `json:"udf5"`
}

// PaymentRequest 发起支付结果
type PaymentRequest struct {
	PayURL string
	Params PaymentParams
}

// Callback 规范化后的回调数据
type Callback struct {
	TxnID       string
	Status      string
	Amount      string
	ProductInfo string
	Firstname   string
	Email       string
	MihpayID    string
	BankRefNum  string
	UDF         [constants.PayUUDFCount]string
	Hash        string
}

// DonationNo 约定关联标识通过第一个透传字段（udf1）往返
func (cb *Callback) DonationNo() string {
	if cb == nil {
		return ""
	}
	return strings.TrimSpace(cb.UDF[0])
}

// BuildPaymentRequest 构建带签名的出站支付请求
//
// 金额必须为正数；交易号每次发起时新生成，与捐赠号相互独立。
func BuildPaymentRequest(cfg *Config, input CreateInput) (*PaymentRequest, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, ErrAmountInvalid
	}
	donationNo := strings.TrimSpace(input.DonationNo)
	if donationNo == "" {
		return nil, ErrMissingCorrelation
	}

	txnid := NewTransactionID()
	amount := input.Amount.Round(2).StringFixed(2)
	productInfo := buildProductInfo(cfg.ProductName, donationNo)
	var udf [constants.PayUUDFCount]string
	udf[0] = donationNo

	params := PaymentParams{
		Key:         cfg.MerchantKey,
		TxnID:       txnid,
		Amount:      amount,
		ProductInfo: productInfo,
		Firstname:   strings.TrimSpace(input.Firstname),
		Email:       strings.TrimSpace(input.Email),
		Phone:       strings.TrimSpace(input.Phone),
		UDF1:        udf[0],
	}
	params.Hash = SignRequest(cfg, params)

	// 成功与失败都回到同一回调地址，由回调自身从载荷中判定结果；
	// query 里再带一份标识作为透传字段之外的兜底。
	returnURL := buildReturnURL(cfg.CallbackURL, donationNo, txnid)
	params.SURL = returnURL
	params.FURL = returnURL

	return &PaymentRequest{
		PayURL: strings.TrimSpace(cfg.GatewayURL),
		Params: params,
	}, nil
}

// SignRequest 计算出站签名
//
// PayU v1 固定字段序：key|txnid|amount|productinfo|firstname|email|udf1..udf5||||||salt，
// 空槽位也参与拼接，顺序与数量是网关线协议的一部分。
func SignRequest(cfg *Config, params PaymentParams) string {
	fields := []string{
		cfg.MerchantKey,
		params.TxnID,
		params.Amount,
		params.ProductInfo,
		params.Firstname,
		params.Email,
		params.UDF1,
		params.UDF2,
		params.UDF3,
		params.UDF4,
		params.UDF5,
		"", "", "", "", "",
	}
	return Digest(fields, cfg.MerchantSalt)
}

// SignCallback 计算入站签名
//
// 入站字段序相对出站整体反转且 salt/key 互换：
// salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key。
func SignCallback(cfg *Config, cb *Callback) string {
	fields := []string{
		cb.Status,
		"", "", "", "", "",
		cb.UDF[4],
		cb.UDF[3],
		cb.UDF[2],
		cb.UDF[1],
		cb.UDF[0],
		cb.Email,
		cb.Firstname,
		cb.ProductInfo,
		cb.Amount,
		cb.TxnID,
		cfg.MerchantKey,
	}
	return digestWithPrefix(cfg.MerchantSalt, fields)
}

// VerifyCallback 验证回调签名
func VerifyCallback(cfg *Config, cb *Callback) error {
	if cfg == nil || cb == nil {
		return ErrConfigInvalid
	}
	received := strings.ToLower(strings.TrimSpace(cb.Hash))
	if received == "" {
		return ErrSignatureInvalid
	}
	expected := SignCallback(cfg, cb)
	if expected != received {
		return ErrSignatureInvalid
	}
	return nil
}

// ParseCallback 将网关表单载荷规范化为回调结构
//
// 缺失字段按空串处理；仅当关联标识（udf1）缺失时返回错误，此时不得继续对账。
func ParseCallback(form map[string][]string) (*Callback, error) {
	cb := &Callback{
		TxnID:       firstValue(form, "txnid"),
		Status:      firstValue(form, "status"),
		Amount:      firstValue(form, "amount"),
		ProductInfo: firstValue(form, "productinfo"),
		Firstname:   firstValue(form, "firstname"),
		Email:       firstValue(form, "email"),
		MihpayID:    firstValue(form, "mihpayid"),
		BankRefNum:  firstValue(form, "bank_ref_num"),
		Hash:        firstValue(form, "hash"),
	}
	for i := 0; i < constants.PayUUDFCount; i++ {
		cb.UDF[i] = firstValue(form, fmt.Sprintf("udf%d", i+1))
	}
	if cb.DonationNo() == "" {
		return nil, ErrMissingCorrelation
	}
	return cb, nil
}

// MapStatus 将网关状态映射到捐赠状态
//
// 仅精确匹配 success/pending；其余一律按 failed 处理，未知结果绝不当作成功。
func MapStatus(gatewayStatus string) string {
	switch gatewayStatus {
	case constants.PayUStatusSuccess:
		return constants.DonationStatusSuccess
	case constants.PayUStatusPending:
		return constants.DonationStatusPending
	default:
		return constants.DonationStatusFailed
	}
}

// NewTransactionID 生成全局唯一交易号（时间前缀 + 随机后缀）
func NewTransactionID() string {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		suffix = big.NewInt(time.Now().UnixNano() % 1000000)
	}
	return fmt.Sprintf("%s_%d_%06d", constants.PayUTxnPrefix, time.Now().UnixMilli(), suffix.Int64())
}

// Digest 对有序字段集计算 keyed digest
//
// 拼接格式 f1|f2|...|fn|secret，SHA-512，小写十六进制。缺失字段以空串占位，
// 不会因输入不完整而报错。
func Digest(fields []string, secret string) string {
	content := strings.Join(fields, "|") + "|" + secret
	sum := sha512.Sum512([]byte(content))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

func digestWithPrefix(secret string, fields []string) string {
	content := secret + "|" + strings.Join(fields, "|")
	sum := sha512.Sum512([]byte(content))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

func buildProductInfo(productName, donationNo string) string {
	name := strings.TrimSpace(productName)
	if name == "" {
		name = "Donation"
	}
	return name + "_" + donationNo
}

func buildReturnURL(callbackURL, donationNo, txnid string) string {
	query := url.Values{}
	query.Set("donationId", donationNo)
	query.Set("txnid", txnid)
	separator := "?"
	if strings.Contains(callbackURL, "?") {
		separator = "&"
	}
	return callbackURL + separator + query.Encode()
}

func firstValue(form map[string][]string, key string) string {
	if values, ok := form[key]; ok && len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
