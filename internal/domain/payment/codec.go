package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
)

var (
	ErrSignatureMismatch = fmt.Errorf("payment: %w", domain.ErrSignatureMismatch)
	ErrSignatureMissing  = fmt.Errorf("payment: %w: signature field is absent", domain.ErrSignatureMismatch)
)

const (
	DefaultSignatureField     = "signature"
	DefaultSignatureTypeField = "signatureType"
)

// HexCase selects the digest encoding; gateways are strict about it.
type HexCase int

const (
	HexUpper HexCase = iota
	HexLower
)

// SpaceEncoding selects how a space is written in the canonical string.
type SpaceEncoding int

const (
	SpacePercent SpaceEncoding = iota
	// SpacePlus follows HTML form encoding, as some gateway SDKs sign.
	SpacePlus
)

// Codec signs and verifies parameter sets with HMAC-SHA512 over their
// canonical string. It is stateless and safe for concurrent use.
type Codec struct {
	secret             []byte
	signatureField     string
	signatureTypeField string
	hexCase            HexCase
	spaces             SpaceEncoding
}

type CodecOption func(*Codec)

func WithSignatureFields(signature, signatureType string) CodecOption {
	return func(c *Codec) {
		c.signatureField = signature
		c.signatureTypeField = signatureType
	}
}

func WithHexCase(hc HexCase) CodecOption {
	return func(c *Codec) { c.hexCase = hc }
}

func WithSpaceEncoding(se SpaceEncoding) CodecOption {
	return func(c *Codec) { c.spaces = se }
}

func NewCodec(secret string, opts ...CodecOption) *Codec {
	c := &Codec{
		secret:             []byte(secret),
		signatureField:     DefaultSignatureField,
		signatureTypeField: DefaultSignatureTypeField,
		hexCase:            HexUpper,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) SignatureField() string { return c.signatureField }

// Canonical renders params as sorted name=value pairs joined by '&'. Signature
// fields and empty values are left out; values are percent-encoded per RFC 3986
// with space as %20, or '+' under SpacePlus.
func (c *Codec) Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || k == c.signatureField || k == c.signatureTypeField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.escape(params[k]))
	}
	return b.String()
}

// Sign returns the hex digest of the canonical string.
func (c *Codec) Sign(params map[string]string) string {
	return c.digest(c.Canonical(params))
}

// Query returns the canonical string with the signature appended, ready to
// be used as a redirect query string.
func (c *Codec) Query(params map[string]string) string {
	canonical := c.Canonical(params)
	sig := c.digest(canonical)
	if canonical == "" {
		return c.signatureField + "=" + sig
	}
	return canonical + "&" + c.signatureField + "=" + sig
}

// Verify recomputes the signature of params without its signature fields and
// compares it with the supplied one in constant time.
func (c *Codec) Verify(params map[string]string) error {
	provided, ok := params[c.signatureField]
	if !ok || provided == "" {
		return ErrSignatureMissing
	}
	expected := c.Sign(params)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (c *Codec) digest(canonical string) string {
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(canonical))
	sum := hex.EncodeToString(mac.Sum(nil))
	if c.hexCase == HexUpper {
		return strings.ToUpper(sum)
	}
	return sum
}

func (c *Codec) escape(v string) string {
	if c.spaces == SpacePlus {
		return url.QueryEscape(v)
	}
	return Escape(v)
}

// Escape percent-encodes every byte outside the RFC 3986 unreserved set.
func Escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
