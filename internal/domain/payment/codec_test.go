package payment_test

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

func hmacHex(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCodecCanonical(t *testing.T) {
	codec := payment.NewCodec("k")

	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{
			name:   "space encodes as %20",
			params: map[string]string{"a": "1 2", "b": "x"},
			want:   "a=1%202&b=x",
		},
		{
			name:   "keys sorted by byte value",
			params: map[string]string{"a": "1", "B": "2", "_": "3"},
			want:   "B=2&_=3&a=1",
		},
		{
			name:   "empty values are dropped",
			params: map[string]string{"a": "", "b": "x"},
			want:   "b=x",
		},
		{
			name:   "signature fields are excluded",
			params: map[string]string{"a": "1", "signature": "abc", "signatureType": "HmacSHA512"},
			want:   "a=1",
		},
		{
			name:   "reserved characters are percent-encoded",
			params: map[string]string{"u": "http://x.y/r?q=1&z=a+b", "t": "a~b-c_d.e*f"},
			want:   "t=a~b-c_d.e%2Af&u=http%3A%2F%2Fx.y%2Fr%3Fq%3D1%26z%3Da%2Bb",
		},
		{
			name:   "utf-8 bytes are encoded individually",
			params: map[string]string{"n": "đơn"},
			want:   "n=%C4%91%C6%A1n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codec.Canonical(tt.params))
		})
	}
}

func TestCodecSignMatchesHMACOverCanonical(t *testing.T) {
	params := map[string]string{"a": "1 2", "b": "x"}

	upper := payment.NewCodec("k")
	lower := payment.NewCodec("k", payment.WithHexCase(payment.HexLower))

	want := hmacHex("k", "a=1%202&b=x")
	assert.Equal(t, strings.ToUpper(want), upper.Sign(params))
	assert.Equal(t, want, lower.Sign(params))
	assert.Len(t, want, 128)
}

func TestCodecSpacePlus(t *testing.T) {
	params := map[string]string{"a": "1 2", "b": "x+y"}
	codec := payment.NewCodec("k", payment.WithSpaceEncoding(payment.SpacePlus))

	assert.Equal(t, "a=1+2&b=x%2By", codec.Canonical(params))
	assert.Equal(t, strings.ToUpper(hmacHex("k", "a=1+2&b=x%2By")), codec.Sign(params))
	assert.NotEqual(t, payment.NewCodec("k").Sign(params), codec.Sign(params))
}

func TestCodecQueryAppendsSignature(t *testing.T) {
	codec := payment.NewCodec("k", payment.WithSignatureFields("vnp_SecureHash", "vnp_SecureHashType"))
	params := map[string]string{"a": "1 2", "b": "x"}

	q := codec.Query(params)

	assert.Equal(t, "a=1%202&b=x&vnp_SecureHash="+codec.Sign(params), q)
}

func TestCodecVerifyRoundTrip(t *testing.T) {
	codec := payment.NewCodec(gofakeit.Password(true, true, true, false, false, 32))

	for i := 0; i < 20; i++ {
		params := randomParams()
		signed := withSignature(codec, params)

		require.NoError(t, codec.Verify(signed))

		signed["signatureType"] = "HmacSHA512"
		require.NoError(t, codec.Verify(signed), "signature type must not take part in the digest")
	}
}

func TestCodecVerifyDetectsAnyFlippedByte(t *testing.T) {
	codec := payment.NewCodec("secret")
	params := randomParams()
	signed := withSignature(codec, params)

	for key, value := range params {
		for pos := 0; pos < len(value); pos++ {
			tampered := cloneParams(signed)
			b := []byte(value)
			b[pos] ^= 0x01
			tampered[key] = string(b)

			err := codec.Verify(tampered)
			require.ErrorIs(t, err, payment.ErrSignatureMismatch, "key=%s pos=%d", key, pos)
		}
	}
}

func TestCodecVerifyErrors(t *testing.T) {
	codec := payment.NewCodec("secret")
	params := map[string]string{"a": "1"}

	err := codec.Verify(params)
	require.ErrorIs(t, err, payment.ErrSignatureMissing)
	require.True(t, errors.Is(err, domain.ErrSignatureMismatch))

	signed := withSignature(codec, params)
	signed["signature"] = strings.ToLower(signed["signature"])
	require.ErrorIs(t, codec.Verify(signed), domain.ErrSignatureMismatch, "comparison is byte for byte")

	other := payment.NewCodec("other")
	require.ErrorIs(t, other.Verify(withSignature(codec, params)), payment.ErrSignatureMismatch)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "1%202", payment.Escape("1 2"))
	assert.Equal(t, "AZaz09-_.~", payment.Escape("AZaz09-_.~"))
	assert.Equal(t, "%21%27%28%29%2A", payment.Escape("!'()*"))
}

func randomParams() map[string]string {
	params := make(map[string]string)
	n := gofakeit.Number(1, 8)
	for len(params) < n {
		params["k_"+gofakeit.LetterN(6)] = gofakeit.Word() + " " + gofakeit.Word()
	}
	return params
}

func withSignature(c *payment.Codec, params map[string]string) map[string]string {
	out := cloneParams(params)
	out[c.SignatureField()] = c.Sign(params)
	return out
}

func cloneParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
