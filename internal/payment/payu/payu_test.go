package payu

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func testConfig() *Config {
	return &Config{
		MerchantKey:  "gtKFFx",
		MerchantSalt: "eCwWELxi",
		GatewayURL:   "https://test.payu.in/_payment",
		CallbackURL:  "http://127.0.0.1:8080/api/v1/payments/payu/callback",
		ProductName:  "Donation",
	}
}

func signedCallback(cfg *Config, donationNo, status string) *Callback {
	cb := &Callback{
		TxnID:       "TXN_1700000000000_123456",
		Status:      status,
		Amount:      "1500.00",
		ProductInfo: "Donation_" + donationNo,
		Firstname:   "Asha",
		Email:       "asha@example.com",
		MihpayID:    "403993715531",
	}
	cb.UDF[0] = donationNo
	cb.Hash = SignCallback(cfg, cb)
	return cb
}

func TestSignRequestFieldOrder(t *testing.T) {
	cfg := testConfig()
	params := PaymentParams{
		TxnID:       "TXN_1",
		Amount:      "1500.00",
		ProductInfo: "Donation_don_42",
		Firstname:   "Asha",
		Email:       "asha@example.com",
		UDF1:        "don_42",
	}

	// key|txnid|amount|productinfo|firstname|email|udf1||||||||||salt
	content := "gtKFFx|TXN_1|1500.00|Donation_don_42|Asha|asha@example.com|don_42||||||||||eCwWELxi"
	sum := sha512.Sum512([]byte(content))
	expected := hex.EncodeToString(sum[:])

	if got := SignRequest(cfg, params); got != expected {
		t.Fatalf("request hash mismatch:\n got %s\nwant %s", got, expected)
	}
}

func TestSignCallbackFieldOrder(t *testing.T) {
	cfg := testConfig()
	cb := &Callback{
		TxnID:       "TXN_1",
		Status:      "success",
		Amount:      "1500.00",
		ProductInfo: "Donation_don_42",
		Firstname:   "Asha",
		Email:       "asha@example.com",
	}
	cb.UDF[0] = "don_42"

	// salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key
	content := "eCwWELxi|success||||||||||don_42|asha@example.com|Asha|Donation_don_42|1500.00|TXN_1|gtKFFx"
	sum := sha512.Sum512([]byte(content))
	expected := hex.EncodeToString(sum[:])

	if got := SignCallback(cfg, cb); got != expected {
		t.Fatalf("callback hash mismatch:\n got %s\nwant %s", got, expected)
	}
}

func TestVerifyCallbackAcceptsValidHash(t *testing.T) {
	cfg := testConfig()
	cb := signedCallback(cfg, "don_42", "success")
	if err := VerifyCallback(cfg, cb); err != nil {
		t.Fatalf("expected valid hash to verify: %v", err)
	}
}

func TestVerifyCallbackIsCaseInsensitive(t *testing.T) {
	cfg := testConfig()
	cb := signedCallback(cfg, "don_42", "success")
	cb.Hash = strings.ToUpper(cb.Hash)
	if err := VerifyCallback(cfg, cb); err != nil {
		t.Fatalf("uppercase hash must verify: %v", err)
	}
}

func TestVerifyCallbackRejectsSingleCharFlip(t *testing.T) {
	cfg := testConfig()
	cb := signedCallback(cfg, "don_42", "success")

	flipped := []byte(cb.Hash)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	cb.Hash = string(flipped)

	if err := VerifyCallback(cfg, cb); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyCallbackRejectsFieldMutation(t *testing.T) {
	cfg := testConfig()
	mutations := []func(cb *Callback){
		func(cb *Callback) { cb.Amount = "9999.00" },
		func(cb *Callback) { cb.Status = "failure" },
		func(cb *Callback) { cb.UDF[0] = "don_other" },
		func(cb *Callback) { cb.Email = "attacker@example.com" },
		func(cb *Callback) { cb.TxnID = "TXN_forged" },
	}
	for i, mutate := range mutations {
		cb := signedCallback(cfg, "don_42", "success")
		mutate(cb)
		if err := VerifyCallback(cfg, cb); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("mutation %d: expected ErrSignatureInvalid, got %v", i, err)
		}
	}
}

func TestVerifyCallbackRejectsEmptyHash(t *testing.T) {
	cfg := testConfig()
	cb := signedCallback(cfg, "don_42", "success")
	cb.Hash = ""
	if err := VerifyCallback(cfg, cb); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		gateway string
		want    string
	}{
		{"success", "success"},
		{"pending", "pending"},
		{"failure", "failed"},
		{"", "failed"},
		{"SUCCESS", "failed"},
		{"Success", "failed"},
		{"garbage", "failed"},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.gateway); got != tc.want {
			t.Fatalf("MapStatus(%q) = %q, want %q", tc.gateway, got, tc.want)
		}
	}
}

func TestBuildPaymentRequest(t *testing.T) {
	cfg := testConfig()
	request, err := BuildPaymentRequest(cfg, CreateInput{
		DonationNo: "don_42",
		Amount:     decimal.RequireFromString("1500"),
		Firstname:  "Asha",
		Email:      "asha@example.com",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if request.PayURL != cfg.GatewayURL {
		t.Fatalf("unexpected pay url: %s", request.PayURL)
	}
	if request.Params.Amount != "1500.00" {
		t.Fatalf("amount must be rendered with 2 decimals, got %s", request.Params.Amount)
	}
	if request.Params.ProductInfo != "Donation_don_42" {
		t.Fatalf("unexpected productinfo: %s", request.Params.ProductInfo)
	}
	if request.Params.UDF1 != "don_42" {
		t.Fatalf("udf1 must carry the donation no, got %s", request.Params.UDF1)
	}
	if !strings.HasPrefix(request.Params.TxnID, "TXN_") {
		t.Fatalf("unexpected txnid: %s", request.Params.TxnID)
	}

	parsed, err := url.Parse(request.Params.SURL)
	if err != nil {
		t.Fatalf("parse surl: %v", err)
	}
	q := parsed.Query()
	if q.Get("donationId") != "don_42" {
		t.Fatalf("surl missing donationId: %s", request.Params.SURL)
	}
	if q.Get("txnid") != request.Params.TxnID {
		t.Fatalf("surl missing txnid: %s", request.Params.SURL)
	}
}

func TestBuildPaymentRequestRejectsBadInput(t *testing.T) {
	cfg := testConfig()

	if _, err := BuildPaymentRequest(cfg, CreateInput{DonationNo: "don_1", Amount: decimal.Zero}); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("zero amount: expected ErrAmountInvalid, got %v", err)
	}
	if _, err := BuildPaymentRequest(cfg, CreateInput{DonationNo: "don_1", Amount: decimal.RequireFromString("-5")}); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("negative amount: expected ErrAmountInvalid, got %v", err)
	}
	if _, err := BuildPaymentRequest(cfg, CreateInput{Amount: decimal.RequireFromString("10")}); !errors.Is(err, ErrMissingCorrelation) {
		t.Fatalf("missing donation no: expected ErrMissingCorrelation, got %v", err)
	}

	broken := testConfig()
	broken.MerchantSalt = ""
	if _, err := BuildPaymentRequest(broken, CreateInput{DonationNo: "don_1", Amount: decimal.RequireFromString("10")}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("missing salt: expected ErrConfigInvalid, got %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	form := map[string][]string{
		"txnid":        {"TXN_1"},
		"status":       {"success"},
		"amount":       {"1500.00"},
		"productinfo":  {"Donation_don_42"},
		"firstname":    {"Asha"},
		"email":        {"asha@example.com"},
		"mihpayid":     {"403993715531"},
		"bank_ref_num": {"br_77"},
		"udf1":         {"don_42"},
		"hash":         {"abc"},
	}
	cb, err := ParseCallback(form)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cb.DonationNo() != "don_42" {
		t.Fatalf("expected don_42, got %s", cb.DonationNo())
	}
	if cb.MihpayID != "403993715531" || cb.BankRefNum != "br_77" {
		t.Fatalf("gateway refs not parsed: %+v", cb)
	}
}

func TestParseCallbackMissingDonationNo(t *testing.T) {
	form := map[string][]string{
		"txnid":  {"TXN_1"},
		"status": {"success"},
		"hash":   {"abc"},
	}
	if _, err := ParseCallback(form); !errors.Is(err, ErrMissingCorrelation) {
		t.Fatalf("expected ErrMissingCorrelation, got %v", err)
	}
}

func TestRoundTripInitiateToCallback(t *testing.T) {
	cfg := testConfig()
	request, err := BuildPaymentRequest(cfg, CreateInput{
		DonationNo: "don_7",
		Amount:     decimal.RequireFromString("250.50"),
		Firstname:  "Ravi",
		Email:      "ravi@example.com",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	cb := &Callback{
		TxnID:       request.Params.TxnID,
		Status:      "success",
		Amount:      request.Params.Amount,
		ProductInfo: request.Params.ProductInfo,
		Firstname:   request.Params.Firstname,
		Email:       request.Params.Email,
	}
	cb.UDF[0] = request.Params.UDF1
	cb.Hash = SignCallback(cfg, cb)

	if err := VerifyCallback(cfg, cb); err != nil {
		t.Fatalf("round trip verify: %v", err)
	}
	if cb.DonationNo() != "don_7" {
		t.Fatalf("correlation lost: %s", cb.DonationNo())
	}
	if MapStatus(cb.Status) != "success" {
		t.Fatalf("unexpected mapped status")
	}
}

func TestNewTransactionIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewTransactionID()
		if !strings.HasPrefix(id, "TXN_") {
			t.Fatalf("unexpected format: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate txnid generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
