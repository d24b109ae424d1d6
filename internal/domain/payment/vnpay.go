package payment

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	FieldVersion        = "vnp_Version"
	FieldCommand        = "vnp_Command"
	FieldTmnCode        = "vnp_TmnCode"
	FieldAmount         = "vnp_Amount"
	FieldCurrCode       = "vnp_CurrCode"
	FieldTxnRef         = "vnp_TxnRef"
	FieldOrderInfo      = "vnp_OrderInfo"
	FieldOrderType      = "vnp_OrderType"
	FieldLocale         = "vnp_Locale"
	FieldReturnURL      = "vnp_ReturnUrl"
	FieldIPAddr         = "vnp_IpAddr"
	FieldCreateDate     = "vnp_CreateDate"
	FieldResponseCode   = "vnp_ResponseCode"
	FieldTransactionNo  = "vnp_TransactionNo"
	FieldBankCode       = "vnp_BankCode"
	FieldSecureHash     = "vnp_SecureHash"
	FieldSecureHashType = "vnp_SecureHashType"

	// ResponseSuccess is the gateway's response code for a paid transaction.
	ResponseSuccess = "00"

	createDateLayout = "20060102150405"
)

// GatewayTime is the fixed UTC+7 zone the gateway expects creation dates in.
var GatewayTime = time.FixedZone("ICT", 7*60*60)

var (
	ErrInvalidAmount = fmt.Errorf("payment: %w: amount must be positive with at most two decimals", domain.ErrValidation)
	ErrMissingTxnRef = fmt.Errorf("payment: %w: transaction reference is required", domain.ErrValidation)
)

type GatewayConfig struct {
	TmnCode   string
	Secret    string
	PayURL    string
	ReturnURL string
	Version   string
	Command   string
	CurrCode  string
	Locale    string
	OrderType string
	HexCase   HexCase
	Spaces    SpaceEncoding
}

// Request describes one outbound payment.
type Request struct {
	TxnRef    string
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
}

// CallbackResult is a verified gateway return.
type CallbackResult struct {
	TxnRef        string
	ResponseCode  string
	TransactionNo string
	BankCode      string
	Amount        decimal.Decimal
}

func (r CallbackResult) Success() bool { return r.ResponseCode == ResponseSuccess }

type Gateway struct {
	cfg   GatewayConfig
	codec *Codec
}

func NewGateway(cfg GatewayConfig) *Gateway {
	return &Gateway{
		cfg:   cfg,
		codec: NewCodec(cfg.Secret,
			WithSignatureFields(FieldSecureHash, FieldSecureHashType),
			WithHexCase(cfg.HexCase),
			WithSpaceEncoding(cfg.Spaces),
		),
	}
}

func (g *Gateway) Codec() *Codec { return g.codec }

// Params builds the unsigned protocol fields for req.
func (g *Gateway) Params(req Request) (map[string]string, error) {
	if req.TxnRef == "" {
		return nil, ErrMissingTxnRef
	}
	minor := req.Amount.Mul(decimal.NewFromInt(100))
	if !minor.IsPositive() || !minor.Equal(minor.Truncate(0)) {
		return nil, ErrInvalidAmount
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return map[string]string{
		FieldVersion:    g.cfg.Version,
		FieldCommand:    g.cfg.Command,
		FieldTmnCode:    g.cfg.TmnCode,
		FieldAmount:     minor.StringFixed(0),
		FieldCurrCode:   g.cfg.CurrCode,
		FieldTxnRef:     req.TxnRef,
		FieldOrderInfo:  StripAccents(req.OrderInfo),
		FieldOrderType:  g.cfg.OrderType,
		FieldLocale:     g.cfg.Locale,
		FieldReturnURL:  g.cfg.ReturnURL,
		FieldIPAddr:     NormalizeClientIP(req.ClientIP),
		FieldCreateDate: created.In(GatewayTime).Format(createDateLayout),
	}, nil
}

// PaymentURL returns the signed redirect URL for req.
func (g *Gateway) PaymentURL(req Request) (string, error) {
	params, err := g.Params(req)
	if err != nil {
		return "", err
	}
	return g.cfg.PayURL + "?" + g.codec.Query(params), nil
}

// ParseCallback verifies the gateway's return parameters and extracts the result.
func (g *Gateway) ParseCallback(params map[string]string) (CallbackResult, error) {
	if err := g.codec.Verify(params); err != nil {
		return CallbackResult{}, err
	}
	res := CallbackResult{
		TxnRef:        params[FieldTxnRef],
		ResponseCode:  params[FieldResponseCode],
		TransactionNo: params[FieldTransactionNo],
		BankCode:      params[FieldBankCode],
	}
	if raw := params[FieldAmount]; raw != "" {
		minor, err := decimal.NewFromString(raw)
		if err != nil {
			return CallbackResult{}, fmt.Errorf("payment: %w: amount %q", domain.ErrValidation, raw)
		}
		res.Amount = minor.Div(decimal.NewFromInt(100))
	}
	if res.TxnRef == "" {
		return CallbackResult{}, ErrMissingTxnRef
	}
	return res, nil
}

// StripAccents removes combining marks so order info stays within ASCII,
// mapping Đ/đ which do not decompose.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.NewReplacer("Đ", "D", "đ", "d").Replace(out)
}

// NormalizeClientIP maps the IPv6 loopback to its IPv4 form.
func NormalizeClientIP(ip string) string {
	switch ip {
	case "::1", "0:0:0:0:0:0:0:1":
		return "127.0.0.1"
	}
	return ip
}
