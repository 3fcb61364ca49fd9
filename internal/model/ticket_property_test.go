package model

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: 归一化幂等
// *For any* 服务 URL，归一化两次与归一化一次结果相同
func TestProperty_NormalizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	urlGen := gen.SliceOfN(8, gen.AlphaLowerChar()).Map(func(chars []rune) string {
		host := string(chars)
		return "https://" + host + ".example.org/cb;jsessionid=" + host + "?ticket=" + host + "#frag"
	})

	properties.Property("归一化幂等", prop.ForAll(
		func(rawURL string) bool {
			once := NormalizeServiceURL(rawURL)
			twice := NormalizeServiceURL(once)
			return once == twice
		},
		urlGen,
	))

	properties.Property("归一化不保留查询串与会话段", prop.ForAll(
		func(rawURL string) bool {
			normalized := NormalizeServiceURL(rawURL)
			return !strings.Contains(normalized, "?") &&
				!strings.Contains(normalized, ";jsessionid")
		},
		urlGen,
	))

	properties.TestingRun(t)
}

// Property: 重复授予抑制
// *For any* 大小写混排的等价 URL 序列，开启最近授予跟踪时只保留一条记录
func TestProperty_DuplicateGrantSuppression(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	grantCountGen := gen.IntRange(2, 8)

	properties.Property("等价服务只保留最近授予", prop.ForAll(
		func(n int) bool {
			tgt, err := NewTicketGrantingTicket("TGT-p", newTestAuth("alice"), nil)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				// 同一服务的大小写与会话段变体
				raw := "https://App.Example.org/cb;jsessionid=S" + strings.Repeat("x", i)
				tgt.GrantServiceTicket(NewTicketID(PrefixST), NewService(raw), nil, false, true)
			}
			return len(tgt.GetServices()) == 1
		},
		grantCountGen,
	))

	properties.Property("单次使用票据恰好消费一次", prop.ForAll(
		func(n int) bool {
			st := NewServiceTicket("ST-p", "TGT-p", NewService("https://a.example.org/cb"), nil, false)
			if st.IsExpired() {
				return false
			}
			for i := 0; i < n; i++ {
				st.Consume()
			}
			return st.IsExpired() && st.GetCountOfUses() == n
		},
		grantCountGen,
	))

	properties.TestingRun(t)
}
