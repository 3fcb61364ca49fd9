package model

import (
	"net/url"
	"regexp"
	"strings"
)

// Service 依赖方服务（以回调 URL 标识）
type Service struct {
	// ID 原始服务 URL
	ID string `json:"id"`
	// NormalizedID 归一化后的 URL，用于重复授予判定
	NormalizedID string `json:"normalized_id"`
}

// NewService 创建服务并计算归一化 ID
func NewService(rawURL string) *Service {
	return &Service{
		ID:           rawURL,
		NormalizedID: NormalizeServiceURL(rawURL),
	}
}

// MatchesService 判断两个服务 URL 归一化后是否等价
func (s *Service) MatchesService(other *Service) bool {
	if other == nil {
		return false
	}
	return s.NormalizedID == other.NormalizedID
}

// jsessionid 等路径级会话参数
var sessionSegmentRe = regexp.MustCompile(`(?i);jsession[^/?#]*`)

// NormalizeServiceURL 归一化服务 URL：
// 去掉 ;jsessionid 之类的路径级会话段、查询串和片段，
// 协议与主机小写，去掉路径尾部斜杠。
// 归一化只用于同一 TGT 下的重复授予抑制，不做额外推断
func NormalizeServiceURL(rawURL string) string {
	cleaned := sessionSegmentRe.ReplaceAllString(rawURL, "")

	u, err := url.Parse(cleaned)
	if err != nil {
		return cleaned
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
