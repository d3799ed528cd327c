package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// 投递请求头
const (
	HeaderSignature = "X-Signature"
	HeaderEventType = "X-Event-Type"
	HeaderDelivery  = "X-Delivery-Id"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// DefaultTolerance 订阅方校验时间戳的默认容差
const DefaultTolerance = 5 * time.Minute

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrTimestampExpired   = errors.New("signature timestamp outside tolerance")
)

// ComputeSignature 计算 HMAC-SHA256("{timestamp}.{payload}") 的十六进制值
func ComputeSignature(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader 生成 X-Signature 头：t=<timestamp>,v1=<hex>
func SignatureHeader(secret string, timestamp int64, payload []byte) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + ComputeSignature(secret, timestamp, payload)
}

// VerifySignature 校验签名，比较耗时与内容无关
func VerifySignature(payload []byte, timestamp int64, signature, secret string) bool {
	expected := ComputeSignature(secret, timestamp, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseSignatureHeader 解析 X-Signature 头，允许出现多个 v1 值
func ParseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp int64
		hasTS     bool
		sigs      []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrMalformedSignature
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			timestamp, hasTS = ts, true
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if !hasTS || len(sigs) == 0 {
		return 0, nil, ErrMalformedSignature
	}
	return timestamp, sigs, nil
}

// Verify 订阅方使用的完整校验：解析头部、检查时间戳容差、比较签名
func Verify(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	timestamp, sigs, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			return ErrTimestampExpired
		}
	}

	for _, sig := range sigs {
		if VerifySignature(body, timestamp, sig, secret) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
