package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
)

// Signature считает подпись уведомления шлюза: HMAC-SHA512 от конкатенации
// внешнего идентификатора заказа, кода статуса и суммы в минорных единицах.
func Signature(serverKey, externalOrderID, statusCode string, grossAmount int64) string {
	mac := hmac.New(sha512.New, []byte(serverKey))
	mac.Write([]byte(externalOrderID))
	mac.Write([]byte(statusCode))
	mac.Write([]byte(strconv.FormatInt(grossAmount, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись уведомления за константное время.
func VerifySignature(serverKey, externalOrderID, statusCode string, grossAmount int64, got string) bool {
	want := Signature(serverKey, externalOrderID, statusCode, grossAmount)
	return hmac.Equal([]byte(want), []byte(got))
}
