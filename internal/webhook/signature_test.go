package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"post.created"}`)
	ts := int64(1_700_000_000)

	sig := ComputeSignature(secret, ts, payload)
	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature(payload, ts, sig, secret))

	t.Run("修改负载任一字节后失效", func(t *testing.T) {
		for i := range payload {
			mutated := append([]byte(nil), payload...)
			mutated[i] ^= 0x01
			assert.False(t, VerifySignature(mutated, ts, sig, secret), "byte %d", i)
		}
	})

	t.Run("修改时间戳后失效", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, ts+1, sig, secret))
	})

	t.Run("密钥不同", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, ts, sig, "whsec_other"))
	})
}

func TestParseSignatureHeader(t *testing.T) {
	ts, sigs, err := ParseSignatureHeader("t=1700000000,v1=abc,v1=def")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), ts)
	assert.Equal(t, []string{"abc", "def"}, sigs)

	for _, header := range []string{"", "t=1700000000", "v1=abc", "t=abc,v1=abc", "garbage"} {
		_, _, err := ParseSignatureHeader(header)
		assert.ErrorIs(t, err, ErrMalformedSignature, header)
	}
}

func TestVerify(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"hello":"world"}`)
	now := time.Unix(1_700_000_000, 0)
	header := SignatureHeader(secret, now.Unix(), body)

	assert.Equal(t, "t="+strconv.FormatInt(now.Unix(), 10)+",v1="+ComputeSignature(secret, now.Unix(), body), header)

	t.Run("签名有效", func(t *testing.T) {
		assert.NoError(t, Verify(secret, header, body, DefaultTolerance, now.Add(time.Minute)))
	})

	t.Run("时间戳过旧", func(t *testing.T) {
		err := Verify(secret, header, body, DefaultTolerance, now.Add(6*time.Minute))
		assert.ErrorIs(t, err, ErrTimestampExpired)
	})

	t.Run("正文被篡改", func(t *testing.T) {
		err := Verify(secret, header, []byte(`{"hello":"World"}`), DefaultTolerance, now)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})
}

func TestRetryPolicy_NextRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6}
	from := time.Unix(1_700_000_000, 0)

	expected := []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 6 * time.Hour}
	for i, d := range expected {
		next := p.NextRetry(i+1, from)
		require.NotNil(t, next, "attempt %d", i+1)
		assert.Equal(t, from.Add(d), *next)
	}

	assert.Nil(t, p.NextRetry(6, from))
	assert.Nil(t, p.NextRetry(0, from))

	long := RetryPolicy{MaxAttempts: 10}
	next := long.NextRetry(8, from)
	require.NotNil(t, next)
	assert.Equal(t, from.Add(6*time.Hour), *next)
}
