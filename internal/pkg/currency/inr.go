// Package currency 提供卢比金额的展示格式化。
package currency

import (
	"fmt"
	"strings"
)

// FormatINR 以千分位格式化卢比金额。
//
// 整数金额不保留小数位（MSP 基本都是整数），带小数的金额保留两位。
func FormatINR(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if strings.HasSuffix(s, ".00") {
		s = s[:len(s)-3]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		dot = len(s)
	}
	head, tail := s[:dot], s[dot:]
	n := len(head)
	if n <= 3 {
		return head + tail
	}
	out := make([]byte, 0, n+n/3+len(tail))
	for i := 0; i < n; i++ {
		out = append(out, head[i])
		if (n-i-1)%3 == 0 && i != n-1 {
			out = append(out, ',')
		}
	}
	return string(out) + tail
}
