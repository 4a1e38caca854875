package redis

import "fmt"

// SessionKey 会话数据（购物车 + 管理员登录态）。
func SessionKey(sid string) string {
	return fmt.Sprintf("storefront:session:%s", sid)
}

// RateLimitKey 限流滑动窗口，scope 区分接口，subject 为会话或 IP。
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("storefront:rate_limit:%s:%s", scope, subject)
}

// CheckoutClaimKey 结账幂等键，防止重复提交生成两张订单。
func CheckoutClaimKey(sid, idemKey string) string {
	return fmt.Sprintf("storefront:checkout:claim:%s:%s", sid, idemKey)
}
